package simulate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/awardtally/internal/adapters/http/api"
	"github.com/okian/awardtally/internal/adapters/ledger"
	app "github.com/okian/awardtally/internal/app"
	"github.com/okian/awardtally/internal/domain/catalog"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func baseConfig(url string) *Config {
	return &Config{
		BaseURL:       url,
		SubcategoryID: "s-comp",
		Nominees:      5,
		NomineePrefix: "sim",
		Facts:         200,
		VoteRatio:     0.7,
		DuplicateRate: 0.1,
		RetractRate:   0.1,
		Roles:         []string{"public", "judge"},
		Workers:       8,
		Timeout:       5 * time.Second,
		Seed:          7,
	}
}

func startTallyServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := catalog.New()
	if err := c.AddCategory(model.Category{ID: "c-comp", Name: "Music", Tier: model.TierCompetitive}); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSubcategory(model.Subcategory{ID: "s-comp", CategoryID: "c-comp", Name: "Best Artist"}); err != nil {
		t.Fatal(err)
	}
	svc, err := app.New(
		app.WithCatalog(c),
		app.WithLedger(ledger.NewMemoryLedger(ledger.WithAutoFund(10))),
		app.WithRescoreInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.NewServer(svc).Handler(context.Background()))
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func TestConfigValidate(t *testing.T) {
	Convey("Given a simulation config", t, func() {
		cfg := baseConfig("http://localhost:9080")

		Convey("When it is complete", func() {
			Convey("Then it validates", func() {
				So(cfg.Validate(), ShouldBeNil)
			})
		})

		Convey("When a field is out of range", func() {
			mutations := []func(c *Config){
				func(c *Config) { c.BaseURL = " " },
				func(c *Config) { c.SubcategoryID = "" },
				func(c *Config) { c.Nominees = 0 },
				func(c *Config) { c.Workers = 0 },
				func(c *Config) { c.Roles = nil },
				func(c *Config) { c.VoteRatio = 1.5 },
				func(c *Config) { c.RetractRate = -0.1 },
			}

			Convey("Then it is rejected", func() {
				for _, mutate := range mutations {
					c := *cfg
					mutate(&c)
					So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
				}
			})
		})
	})
}

func TestGenerateFacts(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := baseConfig("http://localhost:9080")
		rng, seed := newRand(cfg.Seed)
		facts := generateFacts(cfg, rng)

		Convey("Then the seed is kept", func() {
			So(seed, ShouldEqual, uint64(7))
		})

		Convey("Then the requested number of facts is generated", func() {
			So(len(facts), ShouldEqual, 200)
		})

		Convey("Then every vote carries a transaction and replays copy an earlier one", func() {
			txns := make(map[string]Fact)
			replays := 0
			for _, f := range facts {
				So(f.NomineeID, ShouldStartWith, "sim-")
				So([]string{"public", "judge"}, ShouldContain, f.ActorRole)
				if f.Kind == kindVote {
					So(f.AGCTxnID, ShouldNotBeEmpty)
				}
				if f.Replay {
					replays++
					orig, ok := txns[f.AGCTxnID]
					So(ok, ShouldBeTrue)
					So(orig.NomineeID, ShouldEqual, f.NomineeID)
					continue
				}
				if f.AGCTxnID != "" {
					txns[f.AGCTxnID] = f
				}
			}
			So(replays, ShouldBeGreaterThan, 0)
		})

		Convey("Then the same seed yields the same facts apart from txn ids", func() {
			r, _ := newRand(7)
			again := generateFacts(cfg, r)
			for i := range facts {
				So(again[i].Kind, ShouldEqual, facts[i].Kind)
				So(again[i].NomineeID, ShouldEqual, facts[i].NomineeID)
				So(again[i].Replay, ShouldEqual, facts[i].Replay)
			}
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given service answers", t, func() {
		Convey("Then a 201 with an id is accepted", func() {
			o, id := classify(http.StatusCreated, []byte(`{"id":"f-1"}`))
			So(o, ShouldEqual, OutcomeAccepted)
			So(id, ShouldEqual, "f-1")
		})

		Convey("Then a 201 without an id is a failure", func() {
			o, _ := classify(http.StatusCreated, []byte(`{}`))
			So(o, ShouldEqual, OutcomeFailed)
		})

		Convey("Then error statuses map to their outcomes", func() {
			for status, want := range map[int]Outcome{
				http.StatusConflict:            OutcomeDuplicate,
				http.StatusPaymentRequired:     OutcomeRejected,
				http.StatusServiceUnavailable:  OutcomeUnavailable,
				http.StatusUnprocessableEntity: OutcomeInvalid,
				http.StatusBadRequest:          OutcomeInvalid,
				http.StatusInternalServerError: OutcomeFailed,
			} {
				o, _ := classify(status, nil)
				So(o, ShouldEqual, want)
			}
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a tally", t, func() {
		Convey("When it is ranked correctly", func() {
			entries := []tallyEntry{
				{Rank: 1, NomineeID: "a", WeightedScore: 0.9},
				{Rank: 1, NomineeID: "b", WeightedScore: 0.9},
				{Rank: 2, NomineeID: "c", WeightedScore: 0.1},
			}
			So(verifyTally(entries), ShouldBeNil)
		})

		Convey("When a lower score is ranked first", func() {
			entries := []tallyEntry{
				{Rank: 1, NomineeID: "a", WeightedScore: 0.1},
				{Rank: 2, NomineeID: "b", WeightedScore: 0.9},
			}
			So(errors.Is(verifyTally(entries), ErrInconsistent), ShouldBeTrue)
		})

		Convey("When ranks skip", func() {
			entries := []tallyEntry{
				{Rank: 1, NomineeID: "a", WeightedScore: 0.9},
				{Rank: 3, NomineeID: "b", WeightedScore: 0.1},
			}
			So(errors.Is(verifyTally(entries), ErrInconsistent), ShouldBeTrue)
		})

		Convey("When a nominee appears twice", func() {
			entries := []tallyEntry{
				{Rank: 1, NomineeID: "a", WeightedScore: 0.9},
				{Rank: 2, NomineeID: "a", WeightedScore: 0.1},
			}
			So(errors.Is(verifyTally(entries), ErrInconsistent), ShouldBeTrue)
		})
	})

	Convey("Given submissions", t, func() {
		subs := []submission{
			{Fact: Fact{NomineeID: "a", AGCTxnID: "t1"}, Outcome: OutcomeAccepted, FactID: "f1"},
			{Fact: Fact{NomineeID: "a", AGCTxnID: "t1"}, Outcome: OutcomeDuplicate},
			{Fact: Fact{NomineeID: "b"}, Outcome: OutcomeAccepted, FactID: "f2"},
			{Fact: Fact{NomineeID: "b", AGCTxnID: "t2"}, Outcome: OutcomeAccepted, FactID: "f3"},
		}

		Convey("Then each txn backs at most one accepted fact", func() {
			So(verifyAtMostOnce(subs), ShouldBeNil)
			doubled := append(subs, submission{Fact: Fact{NomineeID: "a", AGCTxnID: "t1"}, Outcome: OutcomeAccepted})
			So(errors.Is(verifyAtMostOnce(doubled), ErrInconsistent), ShouldBeTrue)
		})

		Convey("Then count deltas must match accepted minus retracted facts", func() {
			before := map[string]eligibilityResponse{"a": {CombinedCount: 3}, "b": {CombinedCount: 0}}
			after := map[string]eligibilityResponse{"a": {CombinedCount: 4}, "b": {CombinedCount: 1}}
			retracted := []submission{subs[3]}
			So(verifyCounts(before, after, subs, retracted), ShouldBeNil)

			after["b"] = eligibilityResponse{CombinedCount: 2}
			So(errors.Is(verifyCounts(before, after, subs, retracted), ErrInconsistent), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running tally service", t, func() {
		srv := startTallyServer(t)
		cfg := baseConfig(srv.URL)

		Convey("When a simulation runs against it", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then the service state is consistent", func() {
				So(err, ShouldBeNil)
				So(stats.FactsGenerated, ShouldEqual, 200)
				So(stats.FactsSubmitted, ShouldEqual, 200)
				So(stats.Outcomes[OutcomeAccepted], ShouldBeGreaterThan, 0)
				So(stats.Outcomes[OutcomeDuplicate], ShouldBeGreaterThan, 0)
				So(stats.Outcomes[OutcomeFailed], ShouldEqual, 0)
				So(stats.TallyEntries, ShouldEqual, 5)
			})
		})

		Convey("When the target subcategory does not exist", func() {
			cfg.SubcategoryID = "missing"
			_, err := Run(context.Background(), cfg)

			Convey("Then registration fails", func() {
				So(errors.Is(err, ErrUnexpectedReply), ShouldBeTrue)
			})
		})
	})

	Convey("Given no service", t, func() {
		cfg := baseConfig("http://127.0.0.1:1")
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		Convey("Then the run fails its health check", func() {
			_, err := Run(ctx, cfg)
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}
