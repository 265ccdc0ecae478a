package websocket

import (
	"time"

	"sniper/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeDecision - событие торгового решения
	// Отправляется при каждом сигнале: исполнен или отклонён с причиной
	MessageTypeDecision MessageType = "decision"

	// MessageTypeRiskUpdate - состояние защиты капитала
	// Отправляется периодически: breaker, капитал, дневной PnL
	MessageTypeRiskUpdate MessageType = "riskUpdate"

	// MessageTypeStatsUpdate - статистика закрытых сделок
	// Отправляется после закрытия сделки
	MessageTypeStatsUpdate MessageType = "statsUpdate"

	// MessageTypeBalanceUpdate - баланс фьючерсного аккаунта
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"

	// MessageTypeTicker - котировка из публичного потока биржи
	MessageTypeTicker MessageType = "tickerUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// DecisionMessage - событие торгового решения
type DecisionMessage struct {
	BaseMessage
	Data *models.DecisionEvent `json:"data"`
}

// NewDecisionMessage создает сообщение о торговом решении
func NewDecisionMessage(ev *models.DecisionEvent) *DecisionMessage {
	return &DecisionMessage{
		BaseMessage: BaseMessage{Type: MessageTypeDecision, Timestamp: time.Now()},
		Data:        ev,
	}
}

// RiskUpdateData - снимок состояния защиты капитала
type RiskUpdateData struct {
	Capital           float64 `json:"capital"`
	PeakCapital       float64 `json:"peak_capital"`
	DailyPnl          float64 `json:"daily_pnl"`
	BreakerState      string  `json:"breaker_state"`
	RiskLevel         string  `json:"risk_level"`
	OpenPositions     int     `json:"open_positions"`
	DailyTrades       int     `json:"daily_trades"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// RiskUpdateMessage - сообщение о состоянии риска
type RiskUpdateMessage struct {
	BaseMessage
	Data *RiskUpdateData `json:"data"`
}

// NewRiskUpdateMessage создает сообщение о состоянии риска
func NewRiskUpdateMessage(data *RiskUpdateData) *RiskUpdateMessage {
	return &RiskUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeRiskUpdate, Timestamp: time.Now()},
		Data:        data,
	}
}

// StatsUpdateMessage - сообщение со статистикой сделок
type StatsUpdateMessage struct {
	BaseMessage
	Data *models.PerformanceStats `json:"data"`
}

// NewStatsUpdateMessage создает сообщение со статистикой
func NewStatsUpdateMessage(stats *models.PerformanceStats) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeStatsUpdate, Timestamp: time.Now()},
		Data:        stats,
	}
}

// BalanceUpdateMessage - сообщение о балансе аккаунта
type BalanceUpdateMessage struct {
	BaseMessage
	Equity    float64 `json:"equity"`
	Available float64 `json:"available"`
}

// NewBalanceUpdateMessage создает сообщение о балансе
func NewBalanceUpdateMessage(equity, available float64) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeBalanceUpdate, Timestamp: time.Now()},
		Equity:      equity,
		Available:   available,
	}
}

// TickerData - котировка символа
type TickerData struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// TickerMessage - сообщение с котировкой
type TickerMessage struct {
	BaseMessage
	Data *TickerData `json:"data"`
}

// NewTickerMessage создает сообщение с котировкой
func NewTickerMessage(data *TickerData) *TickerMessage {
	return &TickerMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTicker, Timestamp: time.Now()},
		Data:        data,
	}
}
