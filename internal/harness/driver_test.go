// internal/harness/driver_test.go
package harness

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/mocks"
)

var (
	pendingOrder = RowPredicate{
		Rows:       "#productionOrdersTableBody tr",
		Badge:      "span.badge",
		BadgeClass: "bg-warning",
		BadgeText:  "Pendiente",
	}
	completedOrder = RowPredicate{
		Rows:       "#productionOrdersTableBody tr",
		Badge:      "span.badge",
		BadgeClass: "bg-success",
		BadgeText:  "Completada",
	}
	completeAction = Action{
		Name:    "complete order",
		Control: "button.complete-order-btn",
		Dialog: &Dialog{
			Root:    "#confirmCloseOrderModal",
			Fields:  []Field{{Selector: "#realQuantityInput", Value: "10"}},
			Selects: []string{"#completionAlmacenSelect"},
			Submit:  "#confirmCloseOrderModal button[type='submit']",
		},
	}
)

func newTestDriver(t *testing.T, page Page) *Driver {
	t.Helper()
	return NewDriver(page, DriverOptions{
		Policy:        SelectFirstInDocumentOrder,
		TableTimeout:  150 * time.Millisecond,
		DialogTimeout: 150 * time.Millisecond,
		ActionTimeout: 150 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
	}, zaptest.NewLogger(t))
}

func staticRows(rows ...browser.Row) func(int) []browser.Row {
	return func(int) []browser.Row { return rows }
}

func TestDriver_LocateFirst(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("FirstInDocumentOrder", func(t *testing.T) {
		page := &fakePage{rows: staticRows(
			row(0, "14", "bg-success", "Completada"),
			row(1, "13", "bg-warning", "Pendiente"),
			row(2, "12", "bg-warning", "Pendiente"),
		)}
		entity, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.NoError(t, err)
		assert.Equal(t, Entity{ID: "13", Index: 1, Rows: pendingOrder.Rows}, entity)
	})

	t.Run("CaseInsensitiveSubstring", func(t *testing.T) {
		page := &fakePage{rows: staticRows(row(0, "7", "bg-warning", "  PENDIENTE  "))}
		entity, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.NoError(t, err)
		assert.Equal(t, "7", entity.ID)
	})

	t.Run("ClassMustMatch", func(t *testing.T) {
		page := &fakePage{rows: staticRows(row(0, "7", "bg-danger", "Pendiente"))}
		_, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("WaitsForTableToPopulate", func(t *testing.T) {
		page := &fakePage{rows: func(call int) []browser.Row {
			if call < 4 {
				return nil
			}
			return []browser.Row{row(0, "21", "bg-warning", "Pendiente")}
		}}
		entity, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.NoError(t, err)
		assert.Equal(t, "21", entity.ID)
	})

	t.Run("ZeroMatchIsPrecondition", func(t *testing.T) {
		page := &fakePage{rows: staticRows(row(0, "14", "bg-success", "Completada"))}
		_, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoMatch)
		assert.Equal(t, PreconditionNotMet, KindOf(err))
		assert.Contains(t, err.Error(), "among 1 rows")
	})

	t.Run("UnreadableTableIsNotPrecondition", func(t *testing.T) {
		evalErr := errors.New("SyntaxError: '#x tr' is not a valid selector")
		page := &fakePage{rowsErr: func(int) error { return evalErr }}
		_, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoMatch)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, AssertionFailure, KindOf(err))
		assert.Contains(t, err.Error(), "not a valid selector", "the evaluation error is kept")
	})

	t.Run("ZeroMatchAfterTransientErrors", func(t *testing.T) {
		page := &fakePage{
			rows: staticRows(row(0, "14", "bg-success", "Completada")),
			rowsErr: func(call int) error {
				if call < 3 {
					return errors.New("Execution context was destroyed")
				}
				return nil
			},
		}
		_, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoMatch)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, PreconditionNotMet, KindOf(err))
	})

	t.Run("RowsWithoutIDAreSkipped", func(t *testing.T) {
		blank := row(0, "", "bg-warning", "Pendiente")
		page := &fakePage{rows: staticRows(blank, row(1, "5", "bg-warning", "Pendiente"))}
		entity, err := newTestDriver(t, page).LocateFirst(context.Background(), pendingOrder)
		require.NoError(t, err)
		assert.Equal(t, "5", entity.ID)
	})

	t.Run("CallerCancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestDriver(t, &fakePage{}).LocateFirst(ctx, pendingOrder)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrNoMatch)
	})
}

func TestDriver_Act(t *testing.T) {
	entity := Entity{ID: "13", Rows: pendingOrder.Rows}

	t.Run("CompletesDialog", func(t *testing.T) {
		page := &fakePage{selectValue: "alm-central"}
		require.NoError(t, newTestDriver(t, page).Act(context.Background(), entity, completeAction))

		assert.Equal(t, []string{
			"click-in-row 13 button.complete-order-btn",
			"wait #confirmCloseOrderModal",
			"fill #realQuantityInput=10",
			"select #completionAlmacenSelect",
			"click #confirmCloseOrderModal button[type='submit']",
		}, page.recorded())
	})

	t.Run("NoDialog", func(t *testing.T) {
		page := &fakePage{}
		require.NoError(t, newTestDriver(t, page).Act(context.Background(), entity, Action{Name: "reopen", Control: "button.reopen-order-btn"}))
		assert.Equal(t, []string{"click-in-row 13 button.reopen-order-btn"}, page.recorded())
	})

	t.Run("ControlMissing", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("ClickInRow", mock.Anything, pendingOrder.Rows, "13", completeAction.Control).
			Return(browser.ErrControlNotFound)

		err := newTestDriver(t, page).Act(context.Background(), entity, completeAction)
		require.Error(t, err)
		assert.Equal(t, AssertionFailure, KindOf(err))
		assert.ErrorIs(t, err, browser.ErrControlNotFound)
		page.AssertNotCalled(t, "WaitVisible", mock.Anything, mock.Anything)
	})

	t.Run("DialogNeverOpens", func(t *testing.T) {
		page := &fakePage{waitVisible: func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}}
		err := newTestDriver(t, page).Act(context.Background(), entity, completeAction)
		require.Error(t, err)
		assert.Equal(t, "complete order: open dialog", StepOf(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("OnlyPlaceholderOption", func(t *testing.T) {
		page := &fakePage{}
		err := newTestDriver(t, page).Act(context.Background(), entity, completeAction)
		require.Error(t, err)
		assert.ErrorIs(t, err, browser.ErrNoSelectableOption)
		assert.NotContains(t, page.recorded(), "click #confirmCloseOrderModal button[type='submit']")
	})
}

func TestDriver_AwaitToast(t *testing.T) {
	defer goleak.VerifyNone(t)
	exp := ToastExpectation{Selector: "div.toastify.on.toast-bottom.toast-right", Pattern: regexp.MustCompile(`completada con éxito`)}

	t.Run("Appears", func(t *testing.T) {
		calls := 0
		page := &fakePage{texts: func(string) []string {
			calls++
			if calls < 3 {
				return nil
			}
			return []string{"Orden 13 completada con éxito."}
		}}
		text, err := newTestDriver(t, page).AwaitToast(context.Background(), exp)
		require.NoError(t, err)
		assert.Equal(t, "Orden 13 completada con éxito.", text)
	})

	t.Run("WrongToast", func(t *testing.T) {
		page := &fakePage{texts: func(string) []string { return []string{"Error: permiso denegado"} }}
		_, err := newTestDriver(t, page).AwaitToast(context.Background(), exp)
		require.Error(t, err)
		assert.Equal(t, AssertionFailure, KindOf(err))
		assert.Contains(t, err.Error(), "permiso denegado", "the toasts seen are reported")
	})
}

func TestDriver_Reverify(t *testing.T) {
	t.Run("BadgeFlips", func(t *testing.T) {
		page := &fakePage{rows: func(call int) []browser.Row {
			if call < 3 {
				return []browser.Row{row(0, "13", "bg-warning", "Pendiente")}
			}
			return []browser.Row{row(0, "13", "bg-success", "Completada")}
		}}
		require.NoError(t, newTestDriver(t, page).Reverify(context.Background(), "13", completedOrder))
	})

	t.Run("RowMovedStillFoundByID", func(t *testing.T) {
		page := &fakePage{rows: staticRows(
			row(0, "99", "bg-warning", "Pendiente"),
			row(1, "13", "bg-success", "Completada"),
		)}
		require.NoError(t, newTestDriver(t, page).Reverify(context.Background(), "13", completedOrder))
	})

	t.Run("HiddenBadgeFails", func(t *testing.T) {
		hidden := row(0, "13", "bg-success", "Completada")
		hidden.Badges[0].Visible = false
		page := &fakePage{rows: staticRows(hidden)}

		err := newTestDriver(t, page).Reverify(context.Background(), "13", completedOrder)
		require.Error(t, err)
		assert.Equal(t, AssertionFailure, KindOf(err))
		assert.Contains(t, err.Error(), "want visible")
	})

	t.Run("RowGone", func(t *testing.T) {
		page := &fakePage{rows: staticRows(row(0, "14", "bg-success", "Completada"))}
		err := newTestDriver(t, page).Reverify(context.Background(), "13", completedOrder)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no longer present")
	})
}

func TestDriver_CapturedIDRoundTrips(t *testing.T) {
	var clicked string
	page := &fakePage{
		selectValue: "alm-1",
		clickInRow: func(rowID, _ string) error {
			clicked = rowID
			return nil
		},
	}
	page.rows = func(int) []browser.Row {
		if clicked == "" {
			return []browser.Row{row(0, "31", "bg-warning", "Pendiente"), row(1, "30", "bg-warning", "Pendiente")}
		}
		// After the action the table re-sorts; only the ID identifies the row.
		return []browser.Row{row(0, "30", "bg-warning", "Pendiente"), row(1, "31", "bg-success", "Completada")}
	}

	d := newTestDriver(t, page)
	entity, err := d.LocateFirst(context.Background(), pendingOrder)
	require.NoError(t, err)
	require.NoError(t, d.Act(context.Background(), entity, completeAction))
	require.NoError(t, d.Reverify(context.Background(), entity.ID, completedOrder))
	assert.Equal(t, "31", clicked)
}

func TestDriver_WaitRows(t *testing.T) {
	t.Run("Ready", func(t *testing.T) {
		page := &fakePage{rows: func(call int) []browser.Row {
			if call < 2 {
				return nil
			}
			return []browser.Row{row(0, "P-001", "bg-info", "")}
		}}
		rows, err := newTestDriver(t, page).WaitRows(context.Background(), "#productsTableBody tr", HasRows)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("NeverReady", func(t *testing.T) {
		_, err := newTestDriver(t, &fakePage{}).WaitRows(context.Background(), "#productsTableBody tr", HasRows)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "0 present")
	})

	t.Run("HiddenRowsDoNotCount", func(t *testing.T) {
		hidden := row(0, "P-001", "bg-info", "")
		hidden.Visible = false
		assert.False(t, HasRows([]browser.Row{hidden}))
	})
}

func TestPoll(t *testing.T) {
	t.Run("TransientErrorsRetried", func(t *testing.T) {
		calls := 0
		err := poll(context.Background(), time.Millisecond, func(context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, errors.New("Execution context was destroyed")
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("LastErrorReportedOnTimeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		err := poll(ctx, 5*time.Millisecond, func(context.Context) (bool, error) {
			return false, errors.New("detached")
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "detached")
	})

	t.Run("ClosedPageStopsImmediately", func(t *testing.T) {
		err := poll(context.Background(), time.Hour, func(context.Context) (bool, error) {
			return false, browser.ErrPageClosed
		})
		assert.ErrorIs(t, err, browser.ErrPageClosed)
	})

	t.Run("StopUnwraps", func(t *testing.T) {
		sentinel := errors.New("rejected")
		err := poll(context.Background(), time.Hour, func(context.Context) (bool, error) {
			return false, stop(sentinel)
		})
		assert.Equal(t, sentinel, err)
	})
}
