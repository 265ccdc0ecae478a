package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sniper/internal/exchange"
	"sniper/internal/models"
)

// ============ PerformanceHandler Tests ============

func TestPerformanceHandler_GetPerformance(t *testing.T) {
	stats := &MockStatsSource{stats: models.PerformanceStats{
		TotalTrades:  42,
		Wins:         25,
		Losses:       17,
		WinRate:      0.595,
		AvgWin:       80.5,
		AvgLoss:      45.2,
		ProfitFactor: 2.6,
		TotalPnl:     1243.1,
	}}
	handler := NewPerformanceHandler(stats, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/performance", nil)
	w := httptest.NewRecorder()

	handler.GetPerformance(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var got models.PerformanceStats
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.TotalTrades != 42 {
		t.Errorf("expected TotalTrades 42, got %d", got.TotalTrades)
	}
	if got.WinRate != 0.595 {
		t.Errorf("expected WinRate 0.595, got %f", got.WinRate)
	}
}

func TestPerformanceHandler_GetTrades(t *testing.T) {
	trades := []models.TradeRecord{
		{ID: 1, Symbol: "BTCUSDT", Pnl: 100},
		{ID: 2, Symbol: "ETHUSDT", Pnl: -50},
	}

	t.Run("returns recent trades", func(t *testing.T) {
		source := &MockTradeSource{trades: trades}
		handler := NewPerformanceHandler(&MockStatsSource{}, source)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil)
		w := httptest.NewRecorder()

		handler.GetTrades(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if source.lastLimit != 50 {
			t.Errorf("expected default limit 50, got %d", source.lastLimit)
		}

		var got []models.TradeRecord
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 trades, got %d", len(got))
		}
	})

	t.Run("symbol filter routes to TradesBySymbol", func(t *testing.T) {
		source := &MockTradeSource{trades: trades[:1]}
		handler := NewPerformanceHandler(&MockStatsSource{}, source)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/trades?symbol=BTCUSDT&limit=10", nil)
		w := httptest.NewRecorder()

		handler.GetTrades(w, req)

		if source.lastSymbol != "BTCUSDT" {
			t.Errorf("expected symbol BTCUSDT, got %q", source.lastSymbol)
		}
		if source.lastLimit != 10 {
			t.Errorf("expected limit 10, got %d", source.lastLimit)
		}
	})

	t.Run("limit capped at 500", func(t *testing.T) {
		source := &MockTradeSource{trades: trades}
		handler := NewPerformanceHandler(&MockStatsSource{}, source)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/trades?limit=9999", nil)
		w := httptest.NewRecorder()

		handler.GetTrades(w, req)

		if source.lastLimit != 500 {
			t.Errorf("expected capped limit 500, got %d", source.lastLimit)
		}
	})

	t.Run("returns 503 without store", func(t *testing.T) {
		handler := NewPerformanceHandler(&MockStatsSource{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil)
		w := httptest.NewRecorder()

		handler.GetTrades(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		source := &MockTradeSource{err: errors.New("connection refused")}
		handler := NewPerformanceHandler(&MockStatsSource{}, source)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil)
		w := httptest.NewRecorder()

		handler.GetTrades(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

// ============ PositionHandler Tests ============

func TestPositionHandler_GetPositions(t *testing.T) {
	t.Run("returns positions", func(t *testing.T) {
		source := &MockPositionSource{positions: []models.OpenPosition{
			{Symbol: "BTCUSDT", Side: models.DirectionLong, EntryPrice: 50000, Notional: 2500},
		}}
		handler := NewPositionHandler(source, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()

		handler.GetPositions(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var got []models.OpenPosition
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
			t.Errorf("unexpected positions: %+v", got)
		}
	})

	t.Run("empty registry returns empty array", func(t *testing.T) {
		handler := NewPositionHandler(&MockPositionSource{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()

		handler.GetPositions(w, req)

		if body := w.Body.String(); body != "[]\n" && body != "[]" {
			t.Errorf("expected empty array, got %q", body)
		}
	})
}

func TestPositionHandler_GetBalance(t *testing.T) {
	t.Run("returns balance", func(t *testing.T) {
		source := &MockBalanceSource{balance: &exchange.Balance{Equity: 10250.5, Available: 9100}}
		handler := NewPositionHandler(nil, source)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
		w := httptest.NewRecorder()

		handler.GetBalance(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("returns 502 when exchange is down", func(t *testing.T) {
		source := &MockBalanceSource{err: ErrMockExchange}
		handler := NewPositionHandler(nil, source)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
		w := httptest.NewRecorder()

		handler.GetBalance(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status %d, got %d", http.StatusBadGateway, w.Code)
		}
	})
}
