package plans

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jimdaga/mediecho/internal/config"
	"github.com/jimdaga/mediecho/internal/models"
)

// Registry holds the plan catalog in memory, indexed by plan name and price ID.
type Registry struct {
	plans   map[models.Plan]*Plan
	byPrice map[string]*Plan
}

// NewRegistry creates a new empty plan registry.
func NewRegistry() *Registry {
	return &Registry{
		plans:   make(map[models.Plan]*Plan),
		byPrice: make(map[string]*Plan),
	}
}

// Register adds a plan to the registry.
// Returns an error if the plan or one of its price IDs is already registered.
func (r *Registry) Register(p *Plan) error {
	if _, exists := r.plans[p.Name]; exists {
		return fmt.Errorf("plan already registered: %s", p.Name)
	}
	for _, price := range p.Prices {
		if price.PriceID == "" {
			continue
		}
		if other, exists := r.byPrice[price.PriceID]; exists {
			return fmt.Errorf("price %s already registered to plan %s", price.PriceID, other.Name)
		}
	}

	r.plans[p.Name] = p
	for _, price := range p.Prices {
		if price.PriceID != "" {
			r.byPrice[price.PriceID] = p
		}
	}
	return nil
}

// Get retrieves a plan by name.
func (r *Registry) Get(name models.Plan) (*Plan, bool) {
	p, ok := r.plans[name]
	return p, ok
}

// ByPriceID resolves the plan a Stripe price belongs to. Unregistered prices fall
// back to matching the plan name inside the price ID.
func (r *Registry) ByPriceID(priceID string) (*Plan, bool) {
	if p, ok := r.byPrice[priceID]; ok {
		return p, true
	}

	lower := strings.ToLower(priceID)
	// Coach is checked first so "coach_pro" style IDs resolve to the higher tier
	for _, name := range []models.Plan{models.PlanCoach, models.PlanPro} {
		if strings.Contains(lower, string(name)) {
			if p, ok := r.plans[name]; ok {
				return p, true
			}
		}
	}
	return nil, false
}

// List returns all registered plans sorted by display order.
func (r *Registry) List() []*Plan {
	plans := make([]*Plan, 0, len(r.plans))
	for _, p := range r.plans {
		plans = append(plans, p)
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].SortOrder != plans[j].SortOrder {
			return plans[i].SortOrder < plans[j].SortOrder
		}
		return plans[i].Name < plans[j].Name
	})

	return plans
}

// Count returns the number of registered plans.
func (r *Registry) Count() int {
	return len(r.plans)
}

// LoadRegistry builds the registry from the catalog file at path, or the built-in
// catalog when path is empty. Price IDs missing from the catalog are filled from prices.
func LoadRegistry(path string, prices config.StripePrices) (*Registry, error) {
	var (
		catalog []*Plan
		err     error
	)
	if path != "" {
		catalog, err = LoadCatalogFile(path)
	} else {
		catalog, err = ParseCatalog(bytes.NewReader(defaultCatalog))
	}
	if err != nil {
		return nil, err
	}

	envPrices := map[models.Plan]map[string]string{
		models.PlanPro:   {IntervalMonthly: prices.ProMonthly, IntervalYearly: prices.ProYearly},
		models.PlanCoach: {IntervalMonthly: prices.CoachMonthly, IntervalYearly: prices.CoachYearly},
	}

	registry := NewRegistry()
	for _, p := range catalog {
		for i := range p.Prices {
			if p.Prices[i].PriceID == "" {
				p.Prices[i].PriceID = envPrices[p.Name][p.Prices[i].Interval]
			}
		}
		if err := registry.Register(p); err != nil {
			slog.Warn("Skipping plan", "plan", p.Name, "error", err)
			continue
		}
	}

	slog.Debug("Loaded plan catalog", "plans", registry.Count(), "source", catalogSource(path))
	return registry, nil
}

func catalogSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
