package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// FactDependencies defines the ingest operations behind the fact routes.
type FactDependencies interface {
	SubmitNomination(ctx context.Context, nomineeID, role, txnID string) (string, error)
	SubmitVote(ctx context.Context, nomineeID, role, txnID string) (string, error)
	RetractFact(ctx context.Context, factID string) (string, error)
}

// ingestRequest is the body of POST /v1/nominations and POST /v1/votes.
type ingestRequest struct {
	NomineeID string `json:"nominee_id"`
	ActorRole string `json:"actor_role"`
	AGCTxnID  string `json:"agc_txn_id,omitempty"`
}

// FactsHandler handles nomination, vote, and retraction requests.
type FactsHandler struct {
	deps FactDependencies
}

// NewFactsHandler creates a new facts handler.
func NewFactsHandler(deps FactDependencies) *FactsHandler {
	return &FactsHandler{deps: deps}
}

// HandlePostNomination handles POST /v1/nominations.
func (h *FactsHandler) HandlePostNomination(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, "api.post_nomination", h.deps.SubmitNomination)
}

// HandlePostVote handles POST /v1/votes.
func (h *FactsHandler) HandlePostVote(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, "api.post_vote", h.deps.SubmitVote)
}

func (h *FactsHandler) ingest(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	submit func(ctx context.Context, nomineeID, role, txnID string) (string, error),
) {
	var req ingestRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := submit(r.Context(), strings.TrimSpace(req.NomineeID), strings.TrimSpace(req.ActorRole), req.AGCTxnID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// HandleRetract handles POST /v1/facts/{id}/retract.
func (h *FactsHandler) HandleRetract(w http.ResponseWriter, r *http.Request) {
	id, err := h.deps.RetractFact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}
