// internal/mocks/mocks_test.go
package mocks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/identity"
	"github.com/xkilldash9x/operis-e2e/internal/mocks"
)

var _ identity.Provisioner = (*mocks.MockProvisioner)(nil)

func TestMockProvisioner(t *testing.T) {
	m := new(mocks.MockProvisioner)
	m.On("EnsureUser", mock.Anything, "test@test.com", "123456").Return(identity.Account{Email: "test@test.com", Existed: true}, nil)
	m.On("EnsureUser", mock.Anything, "bad@test.com", mock.Anything).Return(identity.Account{}, identity.ErrProvisioning)

	account, err := m.EnsureUser(context.Background(), "test@test.com", "123456")
	require.NoError(t, err)
	assert.True(t, account.Existed)

	_, err = m.EnsureUser(context.Background(), "bad@test.com", "x")
	assert.True(t, errors.Is(err, identity.ErrProvisioning))
	m.AssertExpectations(t)
}

func TestMockPage_NilResults(t *testing.T) {
	m := new(mocks.MockPage)
	m.On("Rows", mock.Anything, "tr", ".badge").Return(nil, errors.New("detached"))
	m.On("Texts", mock.Anything, "div.toastify").Return(nil, nil)
	m.On("Screenshot", mock.Anything).Return([]byte("png"), nil)
	m.On("State", mock.Anything, "#app").Return(browser.ElementState{Present: true}, nil)

	rows, err := m.Rows(context.Background(), "tr", ".badge")
	assert.Nil(t, rows)
	assert.Error(t, err)

	texts, err := m.Texts(context.Background(), "div.toastify")
	assert.Nil(t, texts)
	assert.NoError(t, err)

	shot, err := m.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), shot)

	state, err := m.State(context.Background(), "#app")
	require.NoError(t, err)
	assert.True(t, state.Present)
}
