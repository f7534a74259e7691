// Package catalog holds categories, subcategories, and nominees.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/awardtally/internal/domain/model"
)

// Catalog is the in-memory roster. Tiers are fixed by the category and never change.
type Catalog struct {
	mu            sync.RWMutex
	categories    map[string]model.Category
	subcategories map[string]model.Subcategory
	nominees      map[string]model.Nominee
	bySub         map[string][]string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		categories:    make(map[string]model.Category),
		subcategories: make(map[string]model.Subcategory),
		nominees:      make(map[string]model.Nominee),
		bySub:         make(map[string][]string),
	}
}

// AddCategory registers a category.
func (c *Catalog) AddCategory(cat model.Category) error {
	if strings.TrimSpace(cat.ID) == "" {
		return fmt.Errorf("%w: category id is empty", ErrInvalid)
	}
	tier, err := model.ParseTier(string(cat.Tier))
	if err != nil {
		return fmt.Errorf("%w: category %s: %v", ErrInvalid, cat.ID, err)
	}
	cat.Tier = tier

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.categories[cat.ID]; ok {
		if existing.Tier != cat.Tier {
			return fmt.Errorf("%w: category %s tier is %s", ErrTierChange, cat.ID, existing.Tier)
		}
		return nil
	}
	c.categories[cat.ID] = cat
	return nil
}

// AddSubcategory registers a subcategory under an existing category. The
// subcategory inherits its category's tier.
func (c *Catalog) AddSubcategory(sub model.Subcategory) error {
	if strings.TrimSpace(sub.ID) == "" {
		return fmt.Errorf("%w: subcategory id is empty", ErrInvalid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cat, ok := c.categories[sub.CategoryID]
	if !ok {
		return fmt.Errorf("%w: category %s", ErrNotFound, sub.CategoryID)
	}
	sub.Tier = cat.Tier
	if existing, ok := c.subcategories[sub.ID]; ok {
		if existing.CategoryID != sub.CategoryID {
			return fmt.Errorf("%w: subcategory %s already in category %s", ErrExists, sub.ID, existing.CategoryID)
		}
		return nil
	}
	c.subcategories[sub.ID] = sub
	return nil
}

// AddNominee registers a nominee in an existing subcategory. Re-adding the
// same nominee to the same subcategory is a no-op and reports added=false.
func (c *Catalog) AddNominee(n model.Nominee) (added bool, err error) {
	if strings.TrimSpace(n.ID) == "" {
		return false, fmt.Errorf("%w: nominee id is empty", ErrInvalid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subcategories[n.SubcategoryID]; !ok {
		return false, fmt.Errorf("%w: subcategory %s", ErrNotFound, n.SubcategoryID)
	}
	if existing, ok := c.nominees[n.ID]; ok {
		if existing.SubcategoryID != n.SubcategoryID {
			return false, fmt.Errorf("%w: nominee %s already in subcategory %s", ErrExists, n.ID, existing.SubcategoryID)
		}
		return false, nil
	}
	c.nominees[n.ID] = n
	c.bySub[n.SubcategoryID] = append(c.bySub[n.SubcategoryID], n.ID)
	return true, nil
}

// Category looks up a category.
func (c *Catalog) Category(id string) (model.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.categories[id]
	return cat, ok
}

// Subcategory looks up a subcategory.
func (c *Catalog) Subcategory(id string) (model.Subcategory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subcategories[id]
	return s, ok
}

// Nominee looks up a nominee.
func (c *Catalog) Nominee(id string) (model.Nominee, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nominees[id]
	return n, ok
}

// NomineesIn lists the nominee ids of a subcategory, sorted.
func (c *Catalog) NomineesIn(subcategoryID string) []string {
	c.mu.RLock()
	out := append([]string(nil), c.bySub[subcategoryID]...)
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Subcategories lists every subcategory, sorted by id.
func (c *Catalog) Subcategories() []model.Subcategory {
	c.mu.RLock()
	out := make([]model.Subcategory, 0, len(c.subcategories))
	for _, s := range c.subcategories {
		out = append(out, s)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Nominees lists every nominee, sorted by id.
func (c *Catalog) Nominees() []model.Nominee {
	c.mu.RLock()
	out := make([]model.Nominee, 0, len(c.nominees))
	for _, n := range c.nominees {
		out = append(out, n)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns category, subcategory, and nominee totals.
func (c *Catalog) Counts() (categories, subcategories, nominees int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.categories), len(c.subcategories), len(c.nominees)
}
