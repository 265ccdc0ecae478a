package models

import (
	"fmt"
	"math"
	"time"
)

// Направление сигнала
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Сила сигнала (лестница по проценту конфлюэнса)
const (
	StrengthExtreme  = "EXTREME"  // >= 80%
	StrengthStrong   = "STRONG"   // >= 65%
	StrengthModerate = "MODERATE" // >= 50%
	StrengthWeak     = "WEAK"     // < 50%
)

// Рыночные режимы (определяются по ADX, ширине Bollinger и волатильности)
const (
	RegimeTrendingUp    = "TRENDING_UP"
	RegimeTrendingDown  = "TRENDING_DOWN"
	RegimeRangingNarrow = "RANGING_NARROW"
	RegimeRangingWide   = "RANGING_WIDE"
	RegimeVolatileChaos = "VOLATILE_CHAOS"
)

// FactorScore содержит вклад одного фактора в общий счёт
type FactorScore struct {
	Score int `json:"score"` // набранные баллы
	Max   int `json:"max"`   // максимум фактора
}

// Signal представляет результат скоринга одного символа в один момент времени.
// Неизменяемый после создания: создаётся скорером, дальше только читается.
type Signal struct {
	Symbol      string                 `json:"symbol"`
	Direction   string                 `json:"direction"` // LONG или SHORT
	EntryPrice  float64                `json:"entry_price"`
	StopLoss    float64                `json:"stop_loss"`
	TakeProfit  float64                `json:"take_profit"`
	Score       int                    `json:"score"`        // сумма баллов факторов
	MaxPossible int                    `json:"max_possible"` // сумма максимумов факторов
	Percentage  float64                `json:"percentage"`   // score/maxPossible * 100
	Strength    string                 `json:"strength"`
	Regime      string                 `json:"regime"`
	Breakdown   map[string]FactorScore `json:"breakdown"` // фактор -> (score, max)
	Reasoning   []string               `json:"reasoning"`
	Warnings    []string               `json:"warnings,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// Validate проверяет инварианты сигнала перед использованием.
// Сигнал с нулевой дистанцией до стопа или неконечными ценами отбрасывается
// до любой попытки исполнения.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal has empty symbol")
	}
	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return fmt.Errorf("invalid signal direction: %s", s.Direction)
	}
	for name, p := range map[string]float64{
		"entry_price": s.EntryPrice,
		"stop_loss":   s.StopLoss,
		"take_profit": s.TakeProfit,
	} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("signal %s is not a positive finite number: %v", name, p)
		}
	}
	if s.StopLoss == s.EntryPrice {
		return fmt.Errorf("stop loss equals entry price")
	}
	if s.Percentage < 0 || s.Percentage > 100 {
		return fmt.Errorf("signal percentage out of range: %.2f", s.Percentage)
	}
	return nil
}

// IsExpired возвращает true если сигнал устарел
func (s *Signal) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// RiskRewardRatio возвращает отношение потенциальной прибыли к риску
func (s *Signal) RiskRewardRatio() float64 {
	risk := math.Abs(s.EntryPrice - s.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(s.TakeProfit-s.EntryPrice) / risk
}

// StrengthFor возвращает классификацию силы для процента конфлюэнса
func StrengthFor(percentage float64) string {
	switch {
	case percentage >= 80:
		return StrengthExtreme
	case percentage >= 65:
		return StrengthStrong
	case percentage >= 50:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
