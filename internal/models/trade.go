package models

import "time"

// TradeRecord представляет закрытую сделку в истории торговли.
// История сделок питает расчёт Kelly (win rate, средние прибыль/убыток).
type TradeRecord struct {
	ID         int       `json:"id" db:"id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       string    `json:"side" db:"side"` // LONG или SHORT
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	Notional   float64   `json:"notional" db:"notional"`
	Pnl        float64   `json:"pnl" db:"pnl"`
	Score      int       `json:"score" db:"score"`   // конфлюэнс на входе
	Regime     string    `json:"regime" db:"regime"` // рыночный режим на входе
	OpenedAt   time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time `json:"closed_at" db:"closed_at"`
}

// IsWin возвращает true если сделка прибыльная
func (t *TradeRecord) IsWin() bool {
	return t.Pnl > 0
}

// PerformanceStats - агрегированная статистика по закрытым сделкам
type PerformanceStats struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"` // в долях [0..1]
	AvgWin       float64 `json:"avg_win"`  // средняя прибыль (>0)
	AvgLoss      float64 `json:"avg_loss"` // средний убыток (>0, по модулю)
	ProfitFactor float64 `json:"profit_factor"`
	TotalPnl     float64 `json:"total_pnl"`
	BestStreak   int     `json:"best_streak"`
	WorstStreak  int     `json:"worst_streak"`
}
