// Package plans provides the static fasting plan catalog.
//
// The catalog is immutable and built once at startup. Lookup is total: every
// caller receives an explicit not-found error instead of trusting plan ids
// to exist.
package plans

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/FastTrack/internal/models"
)

// DefaultPlanID is the plan selected on first launch and the fallback when a
// persisted plan id no longer resolves.
const DefaultPlanID = "16:8"

// CategoryPlans pairs a category with its plans in catalog-definition order.
type CategoryPlans struct {
	Category models.PlanCategory `json:"category"`
	Plans    []models.Plan       `json:"plans"`
}

// Catalog is a read-only lookup of fasting plans.
type Catalog struct {
	byID  map[string]models.Plan
	order []string
}

// NewCatalog builds a catalog from the given plans, validating each one.
// Plan order is preserved for category listings.
func NewCatalog(planList ...models.Plan) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]models.Plan, len(planList))}
	for _, p := range planList {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid plan in catalog: %w", err)
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("duplicate plan id %q in catalog", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	slog.Debug("plans.NewCatalog: catalog built", "count", len(c.order))
	return c, nil
}

// Default returns the built-in catalog. It panics on construction failure,
// which can only happen if the compiled-in plan data is broken.
func Default() *Catalog {
	c, err := NewCatalog(builtinPlans...)
	if err != nil {
		panic(fmt.Sprintf("built-in plan catalog is invalid: %v", err))
	}
	return c
}

// Get returns the plan with the given id, or models.ErrPlanNotFound.
func (c *Catalog) Get(id string) (models.Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %q", models.ErrPlanNotFound, id)
	}
	return p, nil
}

// DefaultPlan returns the catalog's default plan, falling back to the first
// plan when the default id is absent (custom catalogs in tests).
func (c *Catalog) DefaultPlan() models.Plan {
	if p, ok := c.byID[DefaultPlanID]; ok {
		return p
	}
	return c.byID[c.order[0]]
}

// ListByCategory returns the fixed category order, each with its plans in
// catalog-definition order. Categories without plans are omitted.
func (c *Catalog) ListByCategory() []CategoryPlans {
	var out []CategoryPlans
	for _, cat := range models.CategoryOrder {
		var group []models.Plan
		for _, id := range c.order {
			if p := c.byID[id]; p.Category == cat {
				group = append(group, p)
			}
		}
		if len(group) > 0 {
			out = append(out, CategoryPlans{Category: cat, Plans: group})
		}
	}
	return out
}

// Len returns the number of plans in the catalog.
func (c *Catalog) Len() int {
	return len(c.order)
}
