package handlers

import (
	"net/http"
	"strconv"

	"sniper/internal/models"
)

// DecisionSource отдаёт последние события торговых решений
type DecisionSource interface {
	RecentDecisions() []models.DecisionEvent
}

// DecisionHandler обрабатывает HTTP запросы журнала решений.
//
// Endpoints:
// - GET /api/v1/decisions?limit=N - последние события решений
type DecisionHandler struct {
	source DecisionSource
}

// NewDecisionHandler создает новый DecisionHandler
func NewDecisionHandler(source DecisionSource) *DecisionHandler {
	return &DecisionHandler{source: source}
}

// GetDecisions возвращает последние события решений, новые в конце.
//
// GET /api/v1/decisions?limit=20
//
// Query Parameters:
// - limit (optional): сколько последних событий вернуть (по умолчанию все)
//
// Response 200 OK:
//
//	[
//	  {"symbol": "BTCUSDT", "direction": "LONG", "score": 82,
//	   "executed": true, "order_id": "...", "timestamp": "..."},
//	  {"symbol": "ETHUSDT", "executed": false,
//	   "rejection_reason": "circuit breaker is OPEN", ...}
//	]
func (h *DecisionHandler) GetDecisions(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized", "")
		return
	}

	decisions := h.source.RecentDecisions()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", limitStr)
			return
		}
		if limit < len(decisions) {
			decisions = decisions[len(decisions)-limit:]
		}
	}

	// Пустой журнал отдаём как [], не null
	if decisions == nil {
		decisions = []models.DecisionEvent{}
	}
	writeJSON(w, http.StatusOK, decisions)
}
