package handlers

import (
	"context"
	"net/http"

	"sniper/internal/exchange"
	"sniper/internal/models"
)

// PositionSource отдаёт реестр открытых позиций
type PositionSource interface {
	OpenPositionsList() []models.OpenPosition
}

// BalanceSource отдаёт баланс фьючерсного аккаунта
type BalanceSource interface {
	GetBalance(ctx context.Context) (*exchange.Balance, error)
}

// PositionHandler обрабатывает HTTP запросы позиций и баланса.
//
// Endpoints:
// - GET /api/v1/positions - открытые позиции из реестра RiskManager
// - GET /api/v1/balance - баланс аккаунта с биржи
type PositionHandler struct {
	positions PositionSource
	balances  BalanceSource
}

// NewPositionHandler создает новый PositionHandler
func NewPositionHandler(positions PositionSource, balances BalanceSource) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		balances:  balances,
	}
}

// GetPositions возвращает открытые позиции.
//
// GET /api/v1/positions
//
// Response 200 OK:
//
//	[
//	  {"symbol": "BTCUSDT", "side": "LONG", "entry_price": 50000,
//	   "notional": 2500, "score": 82, "opened_at": "..."}
//	]
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		writeError(w, http.StatusInternalServerError, "risk manager not initialized", "")
		return
	}

	list := h.positions.OpenPositionsList()
	if list == nil {
		list = []models.OpenPosition{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetBalance возвращает баланс фьючерсного аккаунта.
//
// GET /api/v1/balance
//
// Response 200 OK:
//
//	{"equity": 10250.5, "available": 9100.0}
//
// Response 502 Bad Gateway: биржа недоступна
func (h *PositionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		writeError(w, http.StatusInternalServerError, "exchange not initialized", "")
		return
	}

	balance, err := h.balances.GetBalance(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch balance", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
