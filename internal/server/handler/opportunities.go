package handler

import (
	"net/http"

	"github.com/openarb/venuewatch/internal/domain"
)

// OpportunityHandler serves detected opportunity history.
type OpportunityHandler struct {
	store domain.OpportunityStore // nil when persistence is disabled
}

// NewOpportunityHandler creates an OpportunityHandler over the given store.
func NewOpportunityHandler(store domain.OpportunityStore) *OpportunityHandler {
	return &OpportunityHandler{store: store}
}

// ListRecent returns the most recently detected opportunities.
// GET /api/opportunities?limit=N
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "opportunity persistence is disabled")
		return
	}

	opps, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}
