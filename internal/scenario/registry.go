// internal/scenario/registry.go
package scenario

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

// Scenario is a named verification flow.
type Scenario struct {
	Name        string
	Description string
	// Build binds the flow to its configured inputs.
	Build func(cfg *config.Config) harness.ScenarioFunc
	// Provisions reports whether the configured flow creates its user first.
	Provisions func(cfg *config.Config) bool
}

// Registry holds scenarios in registration order.
type Registry struct {
	order  []string
	byName map[string]Scenario
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Scenario)}
}

// Default returns a registry with every built-in scenario.
func Default() *Registry {
	r := NewRegistry()
	r.mustRegister(Scenario{
		Name:        CompleteOrderName,
		Description: "completes the first pending production order and checks its new status",
		Build:       CompleteOrder,
		Provisions:  func(cfg *config.Config) bool { return cfg.Scenarios.CompleteOrder.Provision },
	})
	r.mustRegister(Scenario{
		Name:        ProductsPaginationName,
		Description: "pages through the products table and checks the pages do not overlap",
		Build:       ProductsPagination,
		Provisions:  func(cfg *config.Config) bool { return cfg.Scenarios.ProductsPagination.Provision },
	})
	return r
}

// Register adds s. Names are unique.
func (r *Registry) Register(s Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Build == nil {
		return fmt.Errorf("scenario '%s' has no body", s.Name)
	}
	if _, exists := r.byName[s.Name]; exists {
		return fmt.Errorf("scenario '%s' is already registered", s.Name)
	}
	r.byName[s.Name] = s
	r.order = append(r.order, s.Name)
	return nil
}

func (r *Registry) mustRegister(s Scenario) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the scenario registered under name.
func (r *Registry) Get(name string) (Scenario, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names lists the registered scenarios in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// NeedsIdentity reports whether any of scenarios provisions a user under cfg.
func NeedsIdentity(cfg *config.Config, scenarios []Scenario) bool {
	for _, s := range scenarios {
		if s.Provisions != nil && s.Provisions(cfg) {
			return true
		}
	}
	return false
}

// Select resolves names in the order given. No names selects everything.
func (r *Registry) Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		names = r.order
	}
	selected := make([]Scenario, 0, len(names))
	var unknown []string
	for _, name := range names {
		s, ok := r.byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, s)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown scenario(s) %s; available: %s",
			strings.Join(unknown, ", "), strings.Join(r.order, ", "))
	}
	return selected, nil
}
