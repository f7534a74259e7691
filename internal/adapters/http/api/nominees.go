package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NomineeDependencies covers roster changes and subcategory closing.
type NomineeDependencies interface {
	RegisterNominee(ctx context.Context, nomineeID, subcategoryID, name string) error
	CloseSubcategory(ctx context.Context, subcategoryID string) ([]string, error)
}

type registerRequest struct {
	NomineeID     string `json:"nominee_id"`
	SubcategoryID string `json:"subcategory_id"`
	Name          string `json:"name"`
}

type closeResponse struct {
	SubcategoryID string   `json:"subcategory_id"`
	Winners       []string `json:"winners"`
}

// NomineesHandler handles nominee registration and subcategory closing.
type NomineesHandler struct {
	deps NomineeDependencies
}

// NewNomineesHandler creates a new nominees handler.
func NewNomineesHandler(deps NomineeDependencies) *NomineesHandler {
	return &NomineesHandler{deps: deps}
}

// HandleRegister handles POST /v1/nominees.
func (h *NomineesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_nominee"
	var req registerRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.RegisterNominee(r.Context(), req.NomineeID, req.SubcategoryID, req.Name); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// HandleClose handles POST /v1/subcategories/{id}/close.
func (h *NomineesHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "id")
	winners, err := h.deps.CloseSubcategory(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if winners == nil {
		winners = []string{}
	}
	writeJSON(w, http.StatusOK, closeResponse{SubcategoryID: sub, Winners: winners})
}
