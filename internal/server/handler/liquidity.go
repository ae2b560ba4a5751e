package handler

import (
	"net/http"

	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/liquidity"
)

// LiquidityHandler serves liquidity trend queries and alert history. Live
// alerts come from the monitor's in-memory log; the optional store serves the
// persisted backlog.
type LiquidityHandler struct {
	monitor *liquidity.Monitor
	store   domain.AlertStore // nil when persistence is disabled
}

// NewLiquidityHandler creates a LiquidityHandler.
func NewLiquidityHandler(monitor *liquidity.Monitor, store domain.AlertStore) *LiquidityHandler {
	return &LiquidityHandler{monitor: monitor, store: store}
}

// Trend computes the liquidity trend for one instrument over a timeframe.
// GET /api/liquidity/{instrument}/trend?timeframe=5m
func (h *LiquidityHandler) Trend(w http.ResponseWriter, r *http.Request) {
	instrument := r.PathValue("instrument")
	if instrument == "" {
		writeError(w, http.StatusBadRequest, "instrument is required")
		return
	}

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "5m"
	}

	writeJSON(w, http.StatusOK, h.monitor.Trend(instrument, timeframe))
}

// ListAlerts returns recent liquidity alerts, newest first. With
// source=store the persisted history is returned instead of the in-memory
// log.
// GET /api/alerts?limit=N&source=live|store
func (h *LiquidityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	if r.URL.Query().Get("source") == "store" {
		if h.store == nil {
			writeError(w, http.StatusNotImplemented, "alert persistence is disabled")
			return
		}
		alerts, err := h.store.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list alerts")
			return
		}
		if alerts == nil {
			alerts = []domain.LiquidityAlert{}
		}
		writeJSON(w, http.StatusOK, alerts)
		return
	}

	alerts := h.monitor.RecentAlerts(limit)
	if alerts == nil {
		alerts = []domain.LiquidityAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
