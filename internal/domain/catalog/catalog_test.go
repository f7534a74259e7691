package catalog_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/awardtally/internal/domain/catalog"
	"github.com/okian/awardtally/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const roster = `
[[category]]
id = "music"
name = "Music"
tier = "Competitive"

  [[category.subcategory]]
  id = "music-vocal"
  name = "Best Vocal"

    [[category.subcategory.nominee]]
    id = "n-1"
    name = "Ada"

    [[category.subcategory.nominee]]
    id = "n-2"
    name = "Grace"

[[category]]
id = "legends"
name = "Legends"
tier = "lifetime"

  [[category.subcategory]]
  id = "legends-arts"
  name = "Arts"
`

func TestRoster(t *testing.T) {
	Convey("Given a TOML roster", t, func() {
		c, err := catalog.DecodeTOML(strings.NewReader(roster))
		So(err, ShouldBeNil)

		Convey("Then subcategories should inherit the category tier", func() {
			s, ok := c.Subcategory("music-vocal")
			So(ok, ShouldBeTrue)
			So(s.Tier, ShouldEqual, model.TierCompetitive)
			l, _ := c.Subcategory("legends-arts")
			So(l.Tier, ShouldEqual, model.TierLifetime)
		})

		Convey("Then nominees should be listed per subcategory", func() {
			So(c.NomineesIn("music-vocal"), ShouldResemble, []string{"n-1", "n-2"})
			cats, subs, noms := c.Counts()
			So(cats, ShouldEqual, 2)
			So(subs, ShouldEqual, 2)
			So(noms, ShouldEqual, 2)
		})

		Convey("When written back and re-read", func() {
			var buf bytes.Buffer
			So(c.WriteTOML(&buf), ShouldBeNil)
			again, err := catalog.DecodeTOML(&buf)

			Convey("Then it should hold the same roster", func() {
				So(err, ShouldBeNil)
				So(again.Subcategories(), ShouldResemble, c.Subcategories())
				So(again.NomineesIn("music-vocal"), ShouldResemble, []string{"n-1", "n-2"})
			})
		})
	})

	Convey("Given a roster file on disk", t, func() {
		path := filepath.Join(t.TempDir(), "roster.toml")
		So(os.WriteFile(path, []byte(roster), 0o600), ShouldBeNil)

		Convey("Then LoadTOML and LoadOrEmpty should read it", func() {
			c, err := catalog.LoadTOML(path)
			So(err, ShouldBeNil)
			_, ok := c.Nominee("n-2")
			So(ok, ShouldBeTrue)

			c2, err := catalog.LoadOrEmpty(path)
			So(err, ShouldBeNil)
			_, _, noms := c2.Counts()
			So(noms, ShouldEqual, 2)
		})

		Convey("Then a missing path should give an empty catalog", func() {
			c, err := catalog.LoadOrEmpty(filepath.Join(t.TempDir(), "missing.toml"))
			So(err, ShouldBeNil)
			_, subs, _ := c.Counts()
			So(subs, ShouldEqual, 0)
		})
	})

	Convey("Given a roster with an unknown tier", t, func() {
		_, err := catalog.DecodeTOML(strings.NewReader("[[category]]\nid = \"x\"\ntier = \"gold\"\n"))

		Convey("Then decoding should fail", func() {
			So(errors.Is(err, catalog.ErrInvalid), ShouldBeTrue)
		})
	})
}

func TestCatalogMutations(t *testing.T) {
	Convey("Given a catalog with one subcategory", t, func() {
		c := catalog.New()
		So(c.AddCategory(model.Category{ID: "c", Tier: model.TierPlatinum}), ShouldBeNil)
		So(c.AddSubcategory(model.Subcategory{ID: "s", CategoryID: "c"}), ShouldBeNil)

		Convey("When adding a nominee twice", func() {
			added, err := c.AddNominee(model.Nominee{ID: "n", SubcategoryID: "s"})
			So(err, ShouldBeNil)
			So(added, ShouldBeTrue)
			added, err = c.AddNominee(model.Nominee{ID: "n", SubcategoryID: "s"})

			Convey("Then the second add should be a no-op", func() {
				So(err, ShouldBeNil)
				So(added, ShouldBeFalse)
				So(c.NomineesIn("s"), ShouldResemble, []string{"n"})
			})
		})

		Convey("When moving a nominee to another subcategory", func() {
			So(c.AddSubcategory(model.Subcategory{ID: "s2", CategoryID: "c"}), ShouldBeNil)
			_, _ = c.AddNominee(model.Nominee{ID: "n", SubcategoryID: "s"})
			_, err := c.AddNominee(model.Nominee{ID: "n", SubcategoryID: "s2"})

			Convey("Then it should fail", func() {
				So(errors.Is(err, catalog.ErrExists), ShouldBeTrue)
			})
		})

		Convey("When the subcategory is unknown", func() {
			_, err := c.AddNominee(model.Nominee{ID: "n", SubcategoryID: "nope"})

			Convey("Then it should fail", func() {
				So(errors.Is(err, catalog.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When re-adding the category with another tier", func() {
			err := c.AddCategory(model.Category{ID: "c", Tier: model.TierLifetime})

			Convey("Then the tier should be immutable", func() {
				So(errors.Is(err, catalog.ErrTierChange), ShouldBeTrue)
				cat, _ := c.Category("c")
				So(cat.Tier, ShouldEqual, model.TierPlatinum)
			})
		})
	})
}
