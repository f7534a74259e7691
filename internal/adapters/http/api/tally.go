package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// TallyDependencies defines the interface for tally reads.
type TallyDependencies interface {
	GetTally(ctx context.Context, subcategoryID string) ([]Entry, error)
}

type tallyResponse struct {
	SubcategoryID string  `json:"subcategory_id"`
	Entries       []Entry `json:"entries"`
}

// TallyHandler handles tally requests.
type TallyHandler struct {
	deps TallyDependencies
}

// NewTallyHandler creates a new tally handler.
func NewTallyHandler(deps TallyDependencies) *TallyHandler {
	return &TallyHandler{deps: deps}
}

// HandleGetTally handles GET /v1/subcategories/{id}/tally?limit=N. Without
// a limit the whole board is returned.
func (h *TallyHandler) HandleGetTally(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_tally"
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	sub := chi.URLParam(r, "id")
	entries, err := h.deps.GetTally(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, Wrap(op, err))
		return
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, tallyResponse{SubcategoryID: sub, Entries: entries})
}
