package handlers

import (
	"context"
	"net/http"
	"strconv"

	"sniper/internal/models"
)

// StatsSource отдаёт агрегированную статистику сделок
type StatsSource interface {
	Stats() models.PerformanceStats
}

// TradeSource отдаёт историю закрытых сделок
type TradeSource interface {
	RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error)
	TradesBySymbol(ctx context.Context, symbol string, limit int) ([]models.TradeRecord, error)
}

// PerformanceHandler обрабатывает HTTP запросы статистики торговли.
//
// Endpoints:
// - GET /api/v1/performance - win rate, средние прибыль/убыток, profit factor
// - GET /api/v1/trades?symbol=BTCUSDT&limit=20 - история сделок
type PerformanceHandler struct {
	stats  StatsSource
	trades TradeSource
}

// NewPerformanceHandler создает новый PerformanceHandler.
// trades может быть nil - история тогда недоступна (нет БД).
func NewPerformanceHandler(stats StatsSource, trades TradeSource) *PerformanceHandler {
	return &PerformanceHandler{
		stats:  stats,
		trades: trades,
	}
}

// GetPerformance возвращает агрегированную статистику сделок.
//
// GET /api/v1/performance
//
// Response 200 OK:
//
//	{"total_trades": 42, "wins": 25, "losses": 17, "win_rate": 0.595,
//	 "avg_win": 80.5, "avg_loss": 45.2, "profit_factor": 2.6, ...}
func (h *PerformanceHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusInternalServerError, "performance tracker not initialized", "")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// GetTrades возвращает историю закрытых сделок.
//
// GET /api/v1/trades?symbol=BTCUSDT&limit=20
//
// Query Parameters:
// - symbol (optional): фильтр по символу
// - limit (optional): количество сделок (по умолчанию 50, максимум 500)
//
// Response 503 Service Unavailable: хранилище не подключено
func (h *PerformanceHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history unavailable", "database not configured")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", limitStr)
			return
		}
		limit = parsed
		if limit > 500 {
			limit = 500
		}
	}

	var (
		trades []models.TradeRecord
		err    error
	)
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		trades, err = h.trades.TradesBySymbol(r.Context(), symbol, limit)
	} else {
		trades, err = h.trades.RecentTrades(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch trades", err.Error())
		return
	}

	if trades == nil {
		trades = []models.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}
