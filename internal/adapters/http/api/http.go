// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/awardtally/internal/adapters/http/swagger"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/types"
	"github.com/okian/awardtally/pkg/logger"
)

// maxBodyBytes caps request bodies; every request shape is a handful of ids.
const maxBodyBytes = 64 << 10

// retryAfterSeconds is sent with 503 ledger_unavailable answers.
const retryAfterSeconds = 1

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service package.
type Dependencies interface {
	FactDependencies
	NomineeDependencies
	TallyDependencies
	EligibilityDependencies
	StatsProvider
}

// Entry mirrors the read shape of one tally row.
type Entry = types.TallyEntry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	factsHandler       *FactsHandler
	nomineesHandler    *NomineesHandler
	tallyHandler       *TallyHandler
	eligibilityHandler *EligibilityHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		factsHandler:       NewFactsHandler(deps),
		nomineesHandler:    NewNomineesHandler(deps),
		tallyHandler:       NewTallyHandler(deps),
		eligibilityHandler: NewEligibilityHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/nominations", MetricsMiddleware(s.factsHandler.HandlePostNomination, "nominations"))
		r.Post("/votes", MetricsMiddleware(s.factsHandler.HandlePostVote, "votes"))
		r.Post("/facts/{id}/retract", MetricsMiddleware(s.factsHandler.HandleRetract, "retract"))

		r.Post("/nominees", MetricsMiddleware(s.nomineesHandler.HandleRegister, "nominees"))
		r.Get("/nominees/{id}/eligibility", MetricsMiddleware(s.eligibilityHandler.HandleGetEligibility, "eligibility"))

		r.Get("/subcategories/{id}/tally", MetricsMiddleware(s.tallyHandler.HandleGetTally, "tally"))
		r.Post("/subcategories/{id}/close", MetricsMiddleware(s.nomineesHandler.HandleClose, "close"))
	})
}

// Handler returns a router carrying the business API, the docs routes, and
// the request-id, real-ip, and panic-recovery middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	swagger.Register(ctx, r)
	s.Register(ctx, r)
	return r
}

type idResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads a JSON body into v. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch types.KindOf(err) {
	case types.ErrValidation:
		return http.StatusUnprocessableEntity, "validation_error"
	case types.ErrDuplicateTransaction:
		return http.StatusConflict, "duplicate_transaction"
	case types.ErrLedgerRejected:
		return http.StatusPaymentRequired, "ledger_rejected"
	case types.ErrLedgerUnavailable:
		return http.StatusServiceUnavailable, "ledger_unavailable"
	case types.ErrAggregateConflict:
		return http.StatusServiceUnavailable, "aggregate_conflict"
	case types.ErrNotFound:
		return http.StatusNotFound, "not_found"
	}
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError answers with the status err maps to. Internal errors are
// logged; their details are not sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		if code == "ledger_unavailable" {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
	case http.StatusInternalServerError:
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, status, code, nil)
		return
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// eligibilityResponse is the presentation view of one nominee.
type eligibilityResponse struct {
	model.EligibilityState
	CertificateEligible bool    `json:"certificate_eligible"`
	WeightedScore       float64 `json:"weighted_score"`
}
