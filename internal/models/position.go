package models

import "time"

// OpenPosition представляет открытую позицию в реестре RiskManager.
// Инвариант: не более одной позиции на символ.
type OpenPosition struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"` // LONG или SHORT
	EntryPrice float64   `json:"entry_price"`
	Notional   float64   `json:"notional"` // размер позиции в USDT
	Score      int       `json:"score"`    // конфлюэнс на момент входа
	OpenedAt   time.Time `json:"opened_at"`
}

// SizingResult содержит рассчитанные параметры ордера.
// Отказ от сделки - это значение, а не ошибка: Rejected=true с машиночитаемой
// причиной в Reason.
type SizingResult struct {
	Quantity float64 `json:"quantity"` // в монетах, кратно lot step
	Leverage int     `json:"leverage"`
	Notional float64 `json:"notional"`  // в USDT
	Margin   float64 `json:"margin"`    // требуемая маржа в USDT
	RiskUSD  float64 `json:"risk_usd"`  // риск на сделку в USDT
	RiskPct  float64 `json:"risk_pct"`  // итоговая доля риска в процентах
	Rejected bool    `json:"rejected"`
	Reason   string  `json:"reason,omitempty"`
}

// Reject создаёт отклонённый результат сайзинга с причиной
func RejectSizing(reason string) SizingResult {
	return SizingResult{Rejected: true, Reason: reason}
}
