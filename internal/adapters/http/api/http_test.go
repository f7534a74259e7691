package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/awardtally/internal/adapters/http/api"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/types"
	"github.com/okian/awardtally/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

// mockDeps records the last call and answers with canned values.
type mockDeps struct {
	err error

	lastOp      string
	lastNominee string
	lastRole    string
	lastTxn     string
	lastID      string

	winners []string
	tally   []types.TallyEntry
	state   model.EligibilityState
	score   float64
	stats   map[string]interface{}
}

func (m *mockDeps) SubmitNomination(_ context.Context, nomineeID, role, txnID string) (string, error) {
	m.lastOp, m.lastNominee, m.lastRole, m.lastTxn = "nomination", nomineeID, role, txnID
	if m.err != nil {
		return "", m.err
	}
	return "fact-1", nil
}

func (m *mockDeps) SubmitVote(_ context.Context, nomineeID, role, txnID string) (string, error) {
	m.lastOp, m.lastNominee, m.lastRole, m.lastTxn = "vote", nomineeID, role, txnID
	if m.err != nil {
		return "", m.err
	}
	return "fact-2", nil
}

func (m *mockDeps) RetractFact(_ context.Context, factID string) (string, error) {
	m.lastOp, m.lastID = "retract", factID
	if m.err != nil {
		return "", m.err
	}
	return "fact-3", nil
}

func (m *mockDeps) RegisterNominee(_ context.Context, nomineeID, subcategoryID, _ string) error {
	m.lastOp, m.lastNominee, m.lastID = "register", nomineeID, subcategoryID
	return m.err
}

func (m *mockDeps) CloseSubcategory(_ context.Context, subcategoryID string) ([]string, error) {
	m.lastOp, m.lastID = "close", subcategoryID
	return m.winners, m.err
}

func (m *mockDeps) GetTally(_ context.Context, subcategoryID string) ([]types.TallyEntry, error) {
	m.lastID = subcategoryID
	return m.tally, m.err
}

func (m *mockDeps) GetEligibility(_ context.Context, nomineeID string) (model.EligibilityState, error) {
	m.lastID = nomineeID
	return m.state, m.err
}

func (m *mockDeps) WeightedScore(context.Context, string) (float64, error) {
	return m.score, m.err
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return m.stats
}

func newRouter(deps *mockDeps) http.Handler {
	r := chi.NewRouter()
	api.NewServer(deps).Register(context.Background(), r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given the API routes on a chi router", t, func() {
		deps := &mockDeps{stats: map[string]interface{}{"started": true}}
		h := newRouter(deps)

		Convey("Then healthz serves metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats returns JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then unknown routes are 404", func() {
			w := do(h, http.MethodGet, "/v1/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a wrong method is 405", func() {
			w := do(h, http.MethodGet, "/v1/votes", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestFactsHandler(t *testing.T) {
	Convey("Given the fact routes", t, func() {
		deps := &mockDeps{}
		h := newRouter(deps)

		Convey("When a vote is posted", func() {
			w := do(h, http.MethodPost, "/v1/votes", `{"nominee_id":" n-1 ","actor_role":"judge","agc_txn_id":"t-1"}`)

			Convey("Then it is created with the fact id", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(decode(w)["id"], ShouldEqual, "fact-2")
				So(deps.lastOp, ShouldEqual, "vote")
				So(deps.lastNominee, ShouldEqual, "n-1")
				So(deps.lastRole, ShouldEqual, "judge")
				So(deps.lastTxn, ShouldEqual, "t-1")
			})
		})

		Convey("When a free nomination is posted", func() {
			w := do(h, http.MethodPost, "/v1/nominations", `{"nominee_id":"n-1","actor_role":"public"}`)

			Convey("Then the txn is empty", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.lastOp, ShouldEqual, "nomination")
				So(deps.lastTxn, ShouldBeEmpty)
			})
		})

		Convey("When the body is malformed", func() {
			bodies := []string{`{`, `not json`, `{"nominee_id":"n","surprise":1}`}

			Convey("Then every one is a bad request and the service is not called", func() {
				for _, b := range bodies {
					w := do(h, http.MethodPost, "/v1/votes", b)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decode(w)["code"], ShouldEqual, "bad_request")
				}
				So(deps.lastOp, ShouldBeEmpty)
			})
		})

		Convey("When a fact is retracted", func() {
			w := do(h, http.MethodPost, "/v1/facts/fact-9/retract", "")

			Convey("Then the retraction id is returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(decode(w)["id"], ShouldEqual, "fact-3")
				So(deps.lastID, ShouldEqual, "fact-9")
			})
		})
	})
}

func TestErrorMapping(t *testing.T) {
	Convey("Given a service that fails", t, func() {
		cases := []struct {
			kind   error
			status int
			code   string
		}{
			{types.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
			{types.ErrDuplicateTransaction, http.StatusConflict, "duplicate_transaction"},
			{types.ErrLedgerRejected, http.StatusPaymentRequired, "ledger_rejected"},
			{types.ErrLedgerUnavailable, http.StatusServiceUnavailable, "ledger_unavailable"},
			{types.ErrAggregateConflict, http.StatusServiceUnavailable, "aggregate_conflict"},
			{types.ErrNotFound, http.StatusNotFound, "not_found"},
		}

		for _, c := range cases {
			Convey(fmt.Sprintf("When it fails with %v", c.kind), func() {
				deps := &mockDeps{err: types.NewError("submit vote", c.kind, errors.New("cause"))}
				w := do(newRouter(deps), http.MethodPost, "/v1/votes", `{"nominee_id":"n","actor_role":"judge","agc_txn_id":"t"}`)

				Convey("Then the status and code follow the kind", func() {
					So(w.Code, ShouldEqual, c.status)
					So(decode(w)["code"], ShouldEqual, c.code)
				})
			})
		}

		Convey("When the ledger is unavailable", func() {
			deps := &mockDeps{err: types.NewError("submit vote", types.ErrLedgerUnavailable, nil)}
			w := do(newRouter(deps), http.MethodPost, "/v1/votes", `{"nominee_id":"n","actor_role":"judge","agc_txn_id":"t"}`)

			Convey("Then the client is told when to retry", func() {
				So(w.Header().Get("Retry-After"), ShouldEqual, "1")
			})
		})

		Convey("When an aggregate conflict persists", func() {
			deps := &mockDeps{err: types.NewError("submit vote", types.ErrAggregateConflict, nil)}
			w := do(newRouter(deps), http.MethodPost, "/v1/votes", `{"nominee_id":"n","actor_role":"judge","agc_txn_id":"t"}`)

			Convey("Then no Retry-After is sent", func() {
				So(w.Header().Get("Retry-After"), ShouldBeEmpty)
			})
		})

		Convey("When the error is internal", func() {
			deps := &mockDeps{err: errors.New("disk on fire")}
			w := do(newRouter(deps), http.MethodPost, "/v1/nominations", `{"nominee_id":"n","actor_role":"public"}`)

			Convey("Then it is a 500 without details", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode(w)
				So(body["code"], ShouldEqual, "internal_error")
				So(body["message"], ShouldNotContainSubstring, "disk")
			})
		})
	})
}

func TestNomineesHandler(t *testing.T) {
	Convey("Given the nominee routes", t, func() {
		deps := &mockDeps{}
		h := newRouter(deps)

		Convey("When a nominee is registered", func() {
			w := do(h, http.MethodPost, "/v1/nominees", `{"nominee_id":"n-7","subcategory_id":"s-1","name":"Seven"}`)

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.lastNominee, ShouldEqual, "n-7")
				So(deps.lastID, ShouldEqual, "s-1")
			})
		})

		Convey("When a subcategory without winners closes", func() {
			w := do(h, http.MethodPost, "/v1/subcategories/s-plat/close", "")

			Convey("Then winners is an empty list", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"winners":[]`)
				So(decode(w)["subcategory_id"], ShouldEqual, "s-plat")
			})
		})

		Convey("When a subcategory with a winner closes", func() {
			deps.winners = []string{"n-1"}
			w := do(h, http.MethodPost, "/v1/subcategories/s-1/close", "")

			Convey("Then the winner is listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["winners"], ShouldResemble, []any{"n-1"})
			})
		})
	})
}

func TestReadHandlers(t *testing.T) {
	Convey("Given a tally of three nominees", t, func() {
		deps := &mockDeps{
			tally: []types.TallyEntry{
				{Rank: 1, NomineeID: "a", WeightedScore: 0.73},
				{Rank: 2, NomineeID: "b", WeightedScore: 0.2},
				{Rank: 3, NomineeID: "c", WeightedScore: 0},
			},
			state: model.EligibilityState{NomineeID: "a", CombinedCount: 1050, CrossedThreshold: true},
			score: 0.73,
		}
		h := newRouter(deps)

		Convey("When the tally is read", func() {
			w := do(h, http.MethodGet, "/v1/subcategories/s-1/tally", "")

			Convey("Then every entry is returned in order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["subcategory_id"], ShouldEqual, "s-1")
				So(body["entries"], ShouldHaveLength, 3)
				So(deps.lastID, ShouldEqual, "s-1")
			})
		})

		Convey("When the tally is read with a limit", func() {
			w := do(h, http.MethodGet, "/v1/subcategories/s-1/tally?limit=2", "")

			Convey("Then only the top entries are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["entries"], ShouldHaveLength, 2)
			})
		})

		Convey("When the limit is invalid", func() {
			for _, q := range []string{"0", "-1", "abc"} {
				w := do(h, http.MethodGet, "/v1/subcategories/s-1/tally?limit="+q, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When eligibility is read", func() {
			w := do(h, http.MethodGet, "/v1/nominees/a/eligibility", "")

			Convey("Then the derived fields are included", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["nominee_id"], ShouldEqual, "a")
				So(body["combined_count"], ShouldEqual, float64(1050))
				So(body["certificate_eligible"], ShouldEqual, true)
				So(body["weighted_score"], ShouldAlmostEqual, 0.73, 1e-9)
			})
		})

		Convey("When the subcategory is unknown", func() {
			deps.err = types.NewError("get tally", types.ErrNotFound, errors.New("subcategory"))
			w := do(h, http.MethodGet, "/v1/subcategories/nope/tally", "")

			Convey("Then it is 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServer_Handler(t *testing.T) {
	Convey("Given the full handler", t, func() {
		h := api.NewServer(&mockDeps{}).Handler(context.Background())

		Convey("Then the docs and the API are both served", func() {
			So(do(h, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodPost, "/v1/nominations", `{"nominee_id":"n","actor_role":"public"}`).Code, ShouldEqual, http.StatusCreated)
		})
	})
}
