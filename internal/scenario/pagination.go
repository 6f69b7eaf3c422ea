// internal/scenario/pagination.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

const (
	ProductsPaginationName = "products-pagination"

	firstPageScreenshot  = "products_page_1.png"
	secondPageScreenshot = "products_page_2.png"
	singlePageScreenshot = "single_page.png"
)

// ErrSinglePage means the products fit on one page, so there is no next page
// to compare against.
var ErrSinglePage = errors.New("products fit on a single page")

// ErrPagesOverlap is wrapped when two consecutive full pages share rows.
var ErrPagesOverlap = errors.New("pages share identifiers")

var indicatorPattern = regexp.MustCompile(`(\d+)\s+de\s+(\d+)`)

// ProductsPagination opens the products table, moves to the second page and
// checks that no product appears on both.
func ProductsPagination(cfg *config.Config) harness.ScenarioFunc {
	sc := cfg.Scenarios.ProductsPagination
	return func(ctx context.Context, env *harness.Env) error {
		if err := login(ctx, env, sc.Credentials, sc.Provision); err != nil {
			return err
		}
		if err := env.Nav.Navigate(ctx, ProductsView); err != nil {
			return err
		}

		first, err := env.Driver.WaitRows(ctx, productsRows, harness.HasRows)
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "await products", err)
		}
		page1 := rowIDs(first)
		env.Record("page_1_ids", strings.Join(page1, ","))
		if _, err := env.Screenshot(ctx, firstPageScreenshot); err != nil {
			return harness.Fail(harness.AssertionFailure, "capture page 1", err)
		}

		next, err := env.Page.State(ctx, productsNextBtn)
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "inspect pagination", err)
		}
		if !next.Present || !next.Visible || next.Disabled {
			env.Progress("only one page of products, nothing to compare")
			if _, shotErr := env.Screenshot(ctx, singlePageScreenshot); shotErr != nil {
				env.Logger.Warn("Failed to capture precondition screenshot.", zap.Error(shotErr))
			}
			return harness.Fail(harness.PreconditionNotMet, "inspect pagination",
				fmt.Errorf("%w (%d rows, next control present=%t disabled=%t)", ErrSinglePage, len(page1), next.Present, next.Disabled))
		}
		before, hasIndicator, err := readIndicator(ctx, env.Page)
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "read page indicator", err)
		}

		if err := env.Page.Click(ctx, productsNextBtn); err != nil {
			return harness.Fail(harness.AssertionFailure, "open next page", err)
		}
		firstID := leadingID(first)
		second, err := env.Driver.WaitRows(ctx, productsRows, func(rows []browser.Row) bool {
			return harness.HasRows(rows) && leadingID(rows) != firstID
		})
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "await page 2", err)
		}
		page2 := rowIDs(second)
		env.Record("page_2_ids", strings.Join(page2, ","))
		if _, err := env.Screenshot(ctx, secondPageScreenshot); err != nil {
			return harness.Fail(harness.AssertionFailure, "capture page 2", err)
		}

		if err := comparePages(page1, page2, sc.PageSize); err != nil {
			return harness.Fail(harness.AssertionFailure, "compare pages", err)
		}
		env.Progress("page 1 (%d rows) and page 2 (%d rows) are disjoint", len(page1), len(page2))

		if !hasIndicator {
			return nil
		}
		after, ok, err := readIndicator(ctx, env.Page)
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "read page indicator", err)
		}
		if !ok || after.Current != before.Current+1 {
			return harness.Fail(harness.AssertionFailure, "check page indicator",
				fmt.Errorf("indicator reads %q after %q, want page %d", after.Text, before.Text, before.Current+1))
		}
		env.Record("page_indicator", after.Text)
		return nil
	}
}

// pageIndicator is the pagination label, e.g. "Página 2 de 7".
type pageIndicator struct {
	Current int
	Total   int
	Text    string
}

// parseIndicator reads the page numbers out of a pagination label.
func parseIndicator(text string) (pageIndicator, bool) {
	m := indicatorPattern.FindStringSubmatch(text)
	if m == nil {
		return pageIndicator{Text: text}, false
	}
	current, err := strconv.Atoi(m[1])
	if err != nil {
		return pageIndicator{Text: text}, false
	}
	total, err := strconv.Atoi(m[2])
	if err != nil {
		return pageIndicator{Text: text}, false
	}
	return pageIndicator{Current: current, Total: total, Text: text}, true
}

// readIndicator returns the first parseable pagination label on the page.
// ok is false when the table renders none.
func readIndicator(ctx context.Context, page harness.Page) (pageIndicator, bool, error) {
	texts, err := page.Texts(ctx, productsLabel)
	if err != nil {
		return pageIndicator{}, false, err
	}
	for _, text := range texts {
		if ind, ok := parseIndicator(text); ok {
			return ind, true, nil
		}
	}
	return pageIndicator{}, false, nil
}

// rowIDs returns the identifiers of the rows in document order.
func rowIDs(rows []browser.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ID != "" {
			ids = append(ids, row.ID)
		}
	}
	return ids
}

func leadingID(rows []browser.Row) string {
	for _, row := range rows {
		if row.ID != "" {
			return row.ID
		}
	}
	return ""
}

// comparePages fails when page1 and page2 share an identifier. A short
// page 1 is the whole dataset and may legitimately repeat on page 2.
func comparePages(page1, page2 []string, pageSize int) error {
	shared := intersect(page1, page2)
	if len(shared) == 0 || len(page1) < pageSize {
		return nil
	}
	diff := cmp.Diff(page1, page2, cmpopts.SortSlices(func(a, b string) bool { return a < b }))
	return fmt.Errorf("%w %v; diff (-page1 +page2):\n%s", ErrPagesOverlap, shared, diff)
}

// intersect returns the identifiers present in both sets, sorted.
func intersect(a, b []string) []string {
	inA := make(map[string]struct{}, len(a))
	for _, id := range a {
		inA[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var shared []string
	for _, id := range b {
		if _, ok := inA[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		shared = append(shared, id)
	}
	sort.Strings(shared)
	return shared
}
