package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/awardtally/internal/domain/model"
)

// EligibilityDependencies defines the interface for per-nominee reads.
type EligibilityDependencies interface {
	GetEligibility(ctx context.Context, nomineeID string) (model.EligibilityState, error)
	WeightedScore(ctx context.Context, nomineeID string) (float64, error)
}

// EligibilityHandler handles eligibility requests.
type EligibilityHandler struct {
	deps EligibilityDependencies
}

// NewEligibilityHandler creates a new eligibility handler.
func NewEligibilityHandler(deps EligibilityDependencies) *EligibilityHandler {
	return &EligibilityHandler{deps: deps}
}

// HandleGetEligibility handles GET /v1/nominees/{id}/eligibility.
func (h *EligibilityHandler) HandleGetEligibility(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_eligibility"
	id := chi.URLParam(r, "id")

	st, err := h.deps.GetEligibility(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, Wrap(op, err))
		return
	}
	score, err := h.deps.WeightedScore(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{
		EligibilityState:    st,
		CertificateEligible: st.CertificateEligible(),
		WeightedScore:       score,
	})
}
