package handlers

import (
	"context"
	"errors"
	"sync"

	"sniper/internal/exchange"
	"sniper/internal/models"
	"sniper/internal/risk"
)

// ErrMockExchange - инжектируемая ошибка биржи
var ErrMockExchange = errors.New("mock exchange error")

// ============ Mock RiskController ============

type MockRiskController struct {
	mu         sync.Mutex
	state      risk.State
	resetCalls int
}

func NewMockRiskController() *MockRiskController {
	return &MockRiskController{
		state: risk.State{
			Capital:       10000,
			PeakCapital:   10400,
			DailyPnl:      -120,
			BreakerState:  risk.BreakerClosed,
			RiskLevel:     risk.LevelNormal,
			OpenPositions: map[string]models.OpenPosition{},
		},
	}
}

func (m *MockRiskController) Snapshot() risk.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockRiskController) ResetBreaker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
	m.state.BreakerState = risk.BreakerClosed
}

func (m *MockRiskController) ResetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCalls
}

// ============ Mock PanicCloser ============

type MockPanicCloser struct {
	closed int
	err    error
	reason string
}

func (m *MockPanicCloser) PanicCloseAll(ctx context.Context, reason string) (int, error) {
	m.reason = reason
	return m.closed, m.err
}

// ============ Mock DecisionSource ============

type MockDecisionSource struct {
	decisions []models.DecisionEvent
}

func (m *MockDecisionSource) RecentDecisions() []models.DecisionEvent {
	return m.decisions
}

// ============ Mock PositionSource ============

type MockPositionSource struct {
	positions []models.OpenPosition
}

func (m *MockPositionSource) OpenPositionsList() []models.OpenPosition {
	return m.positions
}

// ============ Mock BalanceSource ============

type MockBalanceSource struct {
	balance *exchange.Balance
	err     error
}

func (m *MockBalanceSource) GetBalance(ctx context.Context) (*exchange.Balance, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.balance, nil
}

// ============ Mock StatsSource ============

type MockStatsSource struct {
	stats models.PerformanceStats
}

func (m *MockStatsSource) Stats() models.PerformanceStats {
	return m.stats
}

// ============ Mock TradeSource ============

type MockTradeSource struct {
	trades []models.TradeRecord
	err    error

	lastSymbol string
	lastLimit  int
}

func (m *MockTradeSource) RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	m.lastSymbol = ""
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.trades, nil
}

func (m *MockTradeSource) TradesBySymbol(ctx context.Context, symbol string, limit int) ([]models.TradeRecord, error) {
	m.lastSymbol = symbol
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.trades, nil
}
