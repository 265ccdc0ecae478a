package models

import "time"

// Типы событий решений
const (
	DecisionExecuted = "executed"
	DecisionRejected = "rejected"
	DecisionNoSignal = "no_signal"
)

// DecisionEvent - событие по итогам одного решения по символу.
// Отправляется подписчикам (WebSocket, UI) после каждой попытки,
// исполненной или отклонённой.
type DecisionEvent struct {
	Symbol          string    `json:"symbol"`
	Direction       string    `json:"direction,omitempty"`
	Score           int       `json:"score"`
	Percentage      float64   `json:"percentage"`
	Entry           float64   `json:"entry,omitempty"`
	StopLoss        float64   `json:"stop_loss,omitempty"`
	TakeProfit      float64   `json:"take_profit,omitempty"`
	Executed        bool      `json:"executed"`
	OrderID         string    `json:"order_id,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
