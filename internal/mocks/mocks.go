// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/identity"
)

// -- Provisioner Mock --

// MockProvisioner mocks identity.Provisioner.
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) EnsureUser(ctx context.Context, email, password string) (identity.Account, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(identity.Account), args.Error(1)
}

// -- Page Mock --

// MockPage mocks a browser tab as driven by the harness.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) SelectFirstOption(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) State(ctx context.Context, selector string) (browser.ElementState, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(browser.ElementState), args.Error(1)
}

func (m *MockPage) Texts(ctx context.Context, selector string) ([]string, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPage) Rows(ctx context.Context, rowSelector, badgeSelector string) ([]browser.Row, error) {
	args := m.Called(ctx, rowSelector, badgeSelector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.Row), args.Error(1)
}

func (m *MockPage) ClickInRow(ctx context.Context, rowSelector, rowID, control string) error {
	return m.Called(ctx, rowSelector, rowID, control).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPage) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
