package plans

import (
	"errors"
	"testing"

	"github.com/BTreeMap/FastTrack/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}

	p, err := c.Get("16:8")
	if err != nil {
		t.Fatalf("16:8 missing from default catalog: %v", err)
	}
	if p.DurationSeconds != 57600 {
		t.Errorf("16:8 duration expected 57600s, got %d", p.DurationSeconds)
	}

	if c.DefaultPlan().ID != DefaultPlanID {
		t.Errorf("default plan expected %s, got %s", DefaultPlanID, c.DefaultPlan().ID)
	}
}

func TestGetUnknownPlan(t *testing.T) {
	c := Default()
	_, err := c.Get("bogus-id")
	if !errors.Is(err, models.ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestListByCategoryOrder(t *testing.T) {
	c := Default()
	groups := c.ListByCategory()
	if len(groups) == 0 {
		t.Fatal("no category groups returned")
	}

	// Categories must appear in the fixed order.
	lastIdx := -1
	for _, g := range groups {
		idx := -1
		for i, cat := range models.CategoryOrder {
			if cat == g.Category {
				idx = i
				break
			}
		}
		if idx < 0 {
			t.Fatalf("unknown category %q in listing", g.Category)
		}
		if idx <= lastIdx {
			t.Errorf("categories out of order: %v", groups)
		}
		lastIdx = idx
		if len(g.Plans) == 0 {
			t.Errorf("category %s listed with no plans", g.Category)
		}
	}

	// Beginner group starts with 16:8, matching catalog-definition order.
	if groups[0].Category != models.CategoryBeginner || groups[0].Plans[0].ID != "16:8" {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
}

func TestNewCatalogRejectsInvalidPlans(t *testing.T) {
	_, err := NewCatalog(models.Plan{ID: "bad", Category: models.CategoryBeginner, DurationSeconds: 0})
	if err == nil {
		t.Error("catalog accepted a zero-duration plan")
	}

	valid := models.Plan{ID: "p", Category: models.CategoryBeginner, DurationSeconds: 60}
	_, err = NewCatalog(valid, valid)
	if err == nil {
		t.Error("catalog accepted duplicate plan ids")
	}
}

func TestMilestonesAscending(t *testing.T) {
	c := Default()
	for _, g := range c.ListByCategory() {
		for _, p := range g.Plans {
			prev := -1
			for _, m := range p.Milestones {
				if m.Percentage <= prev {
					t.Errorf("plan %s milestones not strictly increasing", p.ID)
				}
				prev = m.Percentage
			}
		}
	}
}
