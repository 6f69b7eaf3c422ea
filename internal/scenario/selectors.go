// internal/scenario/selectors.go
package scenario

import (
	"regexp"

	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

// Selectors of the application under test. They change only when its markup
// does.
const (
	loginTenant     = "#clientSelector"
	loginEmail      = "#loginEmail"
	loginPassword   = "#loginPassword"
	loginSubmit     = "#loginBtn"
	appLandmark     = "#appView:not(.d-none)"
	loginErrorToast = "div.toastify.on"

	ordersRows       = "#productionOrdersTableBody tr"
	completeOrderBtn = "button.complete-order-btn"
	completeDialog   = "#confirmCloseOrderModal"
	realQuantity     = "#realQuantityInput"
	completionStore  = "#completionAlmacenSelect"
	completeSubmit   = "#confirmCloseOrderModal button[type='submit']"
	successToast     = "div.toastify.on.toast-bottom.toast-right"

	productsRows    = "#productsTableBody tr"
	productsNextBtn = "#productsPagination-nextBtn"
	productsLabel   = "#productsPagination span.small"
)

// loginErrors matches the toasts the login page raises for bad input or
// rejected credentials.
var loginErrors = regexp.MustCompile(`(?i)^Error:|no es válido|Por favor, ingrese`)

// LoginForm is the application's login page.
func LoginForm() harness.LoginForm {
	return harness.LoginForm{
		Tenant:       loginTenant,
		Email:        loginEmail,
		Password:     loginPassword,
		Submit:       loginSubmit,
		Landmark:     appLandmark,
		ErrorToast:   loginErrorToast,
		ErrorPattern: loginErrors,
	}
}

var (
	OrdersView   = view("productionOrdersPage")
	ProductsView = view("productsPage")
)

func view(id string) harness.View {
	return harness.View{
		Name:     id,
		Link:     "a[data-page='" + id + "']",
		Landmark: "#" + id,
	}
}

var (
	// PendingOrder matches production orders that can still be completed.
	PendingOrder = harness.RowPredicate{
		Rows:       ordersRows,
		Badge:      "span.badge",
		BadgeClass: "bg-warning",
		BadgeText:  "Pendiente",
	}
	// CompletedOrder matches production orders once they are closed.
	CompletedOrder = harness.RowPredicate{
		Rows:       ordersRows,
		Badge:      "span.badge",
		BadgeClass: "bg-success",
		BadgeText:  "Completada",
	}
)

// completeOrder closes an order with quantity, sending the output to the
// first warehouse offered.
func completeOrder(quantity string) harness.Action {
	return harness.Action{
		Name:    "complete order",
		Control: completeOrderBtn,
		Dialog: &harness.Dialog{
			Root:    completeDialog,
			Fields:  []harness.Field{{Selector: realQuantity, Value: quantity}},
			Selects: []string{completionStore},
			Submit:  completeSubmit,
		},
	}
}
