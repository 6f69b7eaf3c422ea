// internal/scenario/fake_app_test.go
package scenario

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

type fakeOrder struct {
	id     string
	status string
}

// fakeApp models the parts of the application the scenarios touch: the
// login page, the production orders view and the paginated products view.
type fakeApp struct {
	mu sync.Mutex

	loggedIn bool
	view     string
	fills    map[string]string

	orders      []fakeOrder
	dialogFor   string
	toast       string
	silentSaves bool

	products []string
	pageSize int
	page     int
	// nextPage overrides which products the next page shows.
	nextPage func(page int) []string
	// rowsErr, when set, fails every table read.
	rowsErr error

	screenshots int
	closed      int
}

func newFakeApp() *fakeApp {
	return &fakeApp{fills: make(map[string]string), pageSize: 10, page: 1}
}

func (a *fakeApp) totalPages() int {
	if a.pageSize <= 0 {
		return 1
	}
	return (len(a.products) + a.pageSize - 1) / a.pageSize
}

func (a *fakeApp) currentProducts() []string {
	if a.page > 1 && a.nextPage != nil {
		return a.nextPage(a.page)
	}
	start := (a.page - 1) * a.pageSize
	if start >= len(a.products) {
		return nil
	}
	end := start + a.pageSize
	if end > len(a.products) {
		end = len(a.products)
	}
	return a.products[start:end]
}

func (a *fakeApp) order(id string) *fakeOrder {
	for i := range a.orders {
		if a.orders[i].id == id {
			return &a.orders[i]
		}
	}
	return nil
}

func (a *fakeApp) Navigate(ctx context.Context, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedIn = false
	a.view = "login"
	return nil
}

func (a *fakeApp) WaitVisible(ctx context.Context, selector string) error {
	if a.visible(selector) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *fakeApp) visible(selector string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch selector {
	case appLandmark:
		return a.loggedIn
	case completeDialog:
		return a.dialogFor != ""
	case "#" + a.view:
		return a.loggedIn
	}
	return false
}

func (a *fakeApp) Click(ctx context.Context, selector string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case selector == loginSubmit:
		if a.fills[loginTenant] == "" {
			a.toast = "Error: Por favor, ingrese el cliente"
			return nil
		}
		a.loggedIn = true
		a.view = "dashboardPage"
	case strings.HasPrefix(selector, "a[data-page='") && a.loggedIn:
		a.view = strings.TrimSuffix(strings.TrimPrefix(selector, "a[data-page='"), "']")
		a.page = 1
	case selector == productsNextBtn && a.view == ProductsView.Name && a.page < a.totalPages():
		a.page++
	case selector == completeSubmit && a.dialogFor != "":
		if !a.silentSaves {
			a.order(a.dialogFor).status = "Completada"
			a.toast = "Orden de producción completada con éxito"
		}
		a.dialogFor = ""
	default:
		return fmt.Errorf("%w: '%s'", browser.ErrElementNotFound, selector)
	}
	return nil
}

func (a *fakeApp) Fill(ctx context.Context, selector, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fills[selector] = value
	return nil
}

func (a *fakeApp) SelectFirstOption(ctx context.Context, selector string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if selector != completionStore || a.dialogFor == "" {
		return "", browser.ErrElementNotFound
	}
	return "almacen-1", nil
}

func (a *fakeApp) State(ctx context.Context, selector string) (browser.ElementState, error) {
	if selector != productsNextBtn {
		return browser.ElementState{Present: a.visible(selector), Visible: a.visible(selector)}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.view != ProductsView.Name || a.totalPages() <= 1 {
		return browser.ElementState{}, nil
	}
	return browser.ElementState{Present: true, Visible: true, Disabled: a.page == a.totalPages()}, nil
}

func (a *fakeApp) Texts(ctx context.Context, selector string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch selector {
	case loginErrorToast, successToast:
		if a.toast == "" {
			return nil, nil
		}
		return []string{a.toast}, nil
	case productsLabel:
		if a.view != ProductsView.Name || a.totalPages() <= 1 {
			return nil, nil
		}
		return []string{fmt.Sprintf("Página %d de %d", a.page, a.totalPages())}, nil
	}
	return nil, nil
}

func (a *fakeApp) Rows(ctx context.Context, rowSelector, badgeSelector string) ([]browser.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rowsErr != nil {
		return nil, a.rowsErr
	}
	var rows []browser.Row
	switch {
	case rowSelector == ordersRows && a.view == OrdersView.Name:
		for i, o := range a.orders {
			class := "bg-warning"
			if o.status == "Completada" {
				class = "bg-success"
			}
			rows = append(rows, browser.Row{
				Index:   i,
				ID:      o.id,
				Cells:   []string{o.id, "Producto", o.status},
				Visible: true,
				Badges:  []browser.Badge{{Classes: []string{"badge", class}, Text: o.status, Visible: true}},
			})
		}
	case rowSelector == productsRows && a.view == ProductsView.Name:
		for i, id := range a.currentProducts() {
			rows = append(rows, browser.Row{Index: i, ID: id, Cells: []string{id, "desc"}, Visible: true})
		}
	}
	return rows, nil
}

func (a *fakeApp) ClickInRow(ctx context.Context, rowSelector, rowID, control string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o := a.order(rowID)
	if o == nil {
		return browser.ErrRowNotFound
	}
	if control != completeOrderBtn || o.status != "Pendiente" {
		return browser.ErrControlNotFound
	}
	a.dialogFor = rowID
	return nil
}

// pngSignature opens every PNG file.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func (a *fakeApp) Screenshot(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.screenshots++
	return append(append([]byte{}, pngSignature...), "fake"...), nil
}

func (a *fakeApp) HTML(ctx context.Context) (string, error) {
	return "<html></html>", nil
}

func (a *fakeApp) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

type singlePage struct{ page harness.ClosablePage }

func (s singlePage) NewPage(context.Context) (harness.ClosablePage, error) { return s.page, nil }

func productIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("P%03d", i+1)
	}
	return ids
}
