package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/okian/awardtally/internal/domain/model"
)

// Roster is the on-disk TOML layout:
//
//	[[category]]
//	id = "music"
//	name = "Music"
//	tier = "competitive"
//
//	  [[category.subcategory]]
//	  id = "music-vocal"
//	  name = "Best Vocal"
//
//	    [[category.subcategory.nominee]]
//	    id = "n-1"
//	    name = "Ada"
type Roster struct {
	Categories []rosterCategory `toml:"category"`
}

type rosterCategory struct {
	ID            string              `toml:"id"`
	Name          string              `toml:"name"`
	Tier          string              `toml:"tier"`
	Subcategories []rosterSubcategory `toml:"subcategory"`
}

type rosterSubcategory struct {
	ID       string          `toml:"id"`
	Name     string          `toml:"name"`
	Nominees []rosterNominee `toml:"nominee"`
}

type rosterNominee struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// LoadTOML reads a roster file into a new catalog.
func LoadTOML(path string) (*Catalog, error) {
	var r Roster
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return r.Build(time.Now())
}

// DecodeTOML reads a roster from r into a new catalog.
func DecodeTOML(r io.Reader) (*Catalog, error) {
	var roster Roster
	if _, err := toml.NewDecoder(r).Decode(&roster); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return roster.Build(time.Now())
}

// Build validates the roster and fills a catalog. Nominees are stamped with now.
func (r Roster) Build(now time.Time) (*Catalog, error) {
	c := New()
	for _, rc := range r.Categories {
		if err := c.AddCategory(model.Category{ID: rc.ID, Name: rc.Name, Tier: model.AwardTier(rc.Tier)}); err != nil {
			return nil, err
		}
		for _, rs := range rc.Subcategories {
			if err := c.AddSubcategory(model.Subcategory{ID: rs.ID, CategoryID: rc.ID, Name: rs.Name}); err != nil {
				return nil, err
			}
			for _, rn := range rs.Nominees {
				n := model.Nominee{ID: rn.ID, SubcategoryID: rs.ID, Name: rn.Name, CreatedAt: now}
				if _, err := c.AddNominee(n); err != nil {
					return nil, err
				}
			}
		}
	}
	return c, nil
}

// WriteTOML encodes the catalog back into roster form.
func (c *Catalog) WriteTOML(w io.Writer) error {
	var r Roster
	c.mu.RLock()
	catIDs := make([]string, 0, len(c.categories))
	for id := range c.categories {
		catIDs = append(catIDs, id)
	}
	c.mu.RUnlock()
	sort.Strings(catIDs)

	subs := c.Subcategories()
	for _, id := range catIDs {
		cat, _ := c.Category(id)
		rc := rosterCategory{ID: cat.ID, Name: cat.Name, Tier: string(cat.Tier)}
		for _, s := range subs {
			if s.CategoryID != id {
				continue
			}
			rs := rosterSubcategory{ID: s.ID, Name: s.Name}
			for _, nid := range c.NomineesIn(s.ID) {
				n, _ := c.Nominee(nid)
				rs.Nominees = append(rs.Nominees, rosterNominee{ID: n.ID, Name: n.Name})
			}
			rc.Subcategories = append(rc.Subcategories, rs)
		}
		r.Categories = append(r.Categories, rc)
	}
	return toml.NewEncoder(w).Encode(r)
}

// LoadOrEmpty loads path when it exists and returns an empty catalog otherwise.
func LoadOrEmpty(path string) (*Catalog, error) {
	if path == "" {
		return New(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadTOML(path)
}
