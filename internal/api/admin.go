package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/LimmatCapital/Verdict/internal/refresher"
	"github.com/LimmatCapital/Verdict/internal/store"
)

type AdminHandler struct {
	store     store.Store
	refresher *refresher.Refresher
}

func NewAdminHandler(s store.Store, r *refresher.Refresher) *AdminHandler {
	return &AdminHandler{store: s, refresher: r}
}

// Stats aggregates recent assessment outcomes.
// GET /api/v1/admin/stats?days=N
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	stats, err := h.store.GetAssessmentStats(r.Context(), days)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Dealers lists the latest metrics snapshot per dealer, riskiest first.
// GET /api/v1/admin/dealers?watchlist=true
func (h *AdminHandler) Dealers(w http.ResponseWriter, r *http.Request) {
	filter := store.DealerMetricFilter{
		WatchlistOnly: r.URL.Query().Get("watchlist") == "true",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	metrics, err := h.store.ListDealerMetrics(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if metrics == nil {
		metrics = []*store.DealerMetric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

// RefreshDealers runs one dealer metrics cycle outside the schedule.
// POST /api/v1/admin/dealers/refresh
func (h *AdminHandler) RefreshDealers(w http.ResponseWriter, r *http.Request) {
	result, err := h.refresher.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, refresher.ErrAlreadyRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
