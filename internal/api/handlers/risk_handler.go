package handlers

import (
	"context"
	"net/http"

	"sniper/internal/risk"
)

// RiskController - операции над состоянием защиты капитала
type RiskController interface {
	Snapshot() risk.State
	ResetBreaker()
}

// PanicCloser экстренно закрывает все позиции на бирже
type PanicCloser interface {
	PanicCloseAll(ctx context.Context, reason string) (int, error)
}

// RiskHandler обрабатывает HTTP запросы состояния риска.
//
// Endpoints:
// - GET /api/v1/risk/state - текущее состояние: breaker, капитал, лимиты
// - POST /api/v1/risk/reset - ручной сброс circuit breaker
// - POST /api/v1/risk/panic - экстренное закрытие всех позиций
type RiskHandler struct {
	riskMgr RiskController
	closer  PanicCloser
}

// NewRiskHandler создает новый RiskHandler
func NewRiskHandler(riskMgr RiskController, closer PanicCloser) *RiskHandler {
	return &RiskHandler{
		riskMgr: riskMgr,
		closer:  closer,
	}
}

// GetState возвращает снимок состояния защиты капитала.
//
// GET /api/v1/risk/state
//
// Response 200 OK:
//
//	{
//	  "capital": 10250.5,
//	  "peak_capital": 10400.0,
//	  "daily_pnl": -120.0,
//	  "breaker_state": "CLOSED",
//	  "risk_level": "NORMAL",
//	  "open_positions": {...}
//	}
func (h *RiskHandler) GetState(w http.ResponseWriter, r *http.Request) {
	if h.riskMgr == nil {
		writeError(w, http.StatusInternalServerError, "risk manager not initialized", "")
		return
	}
	writeJSON(w, http.StatusOK, h.riskMgr.Snapshot())
}

// ResetBreaker вручную закрывает circuit breaker.
// Оператор подтверждает, что причина срабатывания устранена.
//
// POST /api/v1/risk/reset
func (h *RiskHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	if h.riskMgr == nil {
		writeError(w, http.StatusInternalServerError, "risk manager not initialized", "")
		return
	}

	h.riskMgr.ResetBreaker()
	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "circuit breaker reset",
		Data:    h.riskMgr.Snapshot(),
	})
}

// panicRequest - тело запроса экстренного закрытия
type panicRequest struct {
	Reason string `json:"reason"`
}

// PanicClose экстренно закрывает все открытые позиции рыночными
// ордерами и переводит риск в EMERGENCY.
//
// POST /api/v1/risk/panic
// Body: {"reason": "manual intervention"}
//
// Response 200 OK:
//
//	{"message": "positions closed", "data": {"closed": 2}}
func (h *RiskHandler) PanicClose(w http.ResponseWriter, r *http.Request) {
	if h.closer == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized", "")
		return
	}

	var req panicRequest
	if r.Body != nil {
		// Тело опционально: отсутствие причины не блокирует закрытие
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "manual panic close"
	}

	closed, err := h.closer.PanicCloseAll(r.Context(), req.Reason)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "panic close incomplete",
			"closed":  closed,
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "positions closed",
		Data:    map[string]int{"closed": closed},
	})
}
