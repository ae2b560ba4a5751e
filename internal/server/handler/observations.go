package handler

import (
	"net/http"
	"sort"

	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/oracle"
)

// ObservationHandler serves the current observation cache contents and oracle
// consensus snapshots.
type ObservationHandler struct {
	cache     domain.ObservationCache
	validator *oracle.Validator
}

// NewObservationHandler creates an ObservationHandler.
func NewObservationHandler(cache domain.ObservationCache, validator *oracle.Validator) *ObservationHandler {
	return &ObservationHandler{cache: cache, validator: validator}
}

// ListObservations returns all cached observations, optionally filtered by
// instrument, ordered by venue then instrument.
// GET /api/observations?instrument=X
func (h *ObservationHandler) ListObservations(w http.ResponseWriter, r *http.Request) {
	instrument := r.URL.Query().Get("instrument")

	all := h.cache.Snapshot()
	out := make([]domain.PriceObservation, 0, len(all))
	for _, obs := range all {
		if instrument != "" && obs.Instrument != instrument {
			continue
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Instrument < out[j].Instrument
	})
	writeJSON(w, http.StatusOK, out)
}

// Consensus returns the current oracle consensus for one asset.
// GET /api/oracle/{asset}/consensus
func (h *ObservationHandler) Consensus(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}

	consensus, ok := h.validator.Consensus(asset)
	if !ok {
		writeError(w, http.StatusNotFound, "no live oracle readings for asset")
		return
	}
	writeJSON(w, http.StatusOK, consensus)
}
