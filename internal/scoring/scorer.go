package scoring

import (
	"math"
	"time"

	"sniper/internal/models"
)

// scorer.go - ядро скоринга: снапшот индикаторов -> сигнал или ничего
//
// Скорер - чистая функция над уже полученными данными: ни сети, ни
// состояния. Решение о допуске сигнала принимается по проценту
// конфлюэнса относительно режим-зависимого порога.

// Config - параметры скорера
type Config struct {
	MinBars       int                // минимум баров истории для скоринга
	RiskReward    float64            // целевое отношение профита к риску
	MinRiskReward float64            // минимально допустимый RR сигнала
	SignalTTL     time.Duration      // срок жизни сигнала
	Thresholds    map[string]float64 // режим -> минимальный процент конфлюэнса
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		MinBars:       50,
		RiskReward:    1.5,
		MinRiskReward: 1.2,
		SignalTTL:     5 * time.Minute,
		Thresholds: map[string]float64{
			models.RegimeTrendingUp:    55,
			models.RegimeTrendingDown:  55,
			models.RegimeRangingNarrow: 50,
			models.RegimeRangingWide:   60,
			models.RegimeVolatileChaos: 70,
		},
	}
}

// Scorer вычисляет конфлюэнс-сигнал по снапшоту индикаторов
type Scorer struct {
	cfg Config
}

// NewScorer создает скорер с заданной конфигурацией
func NewScorer(cfg Config) *Scorer {
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultConfig().Thresholds
	}
	return &Scorer{cfg: cfg}
}

// ThresholdFor возвращает минимальный порог конфлюэнса для режима.
// Неизвестный режим получает консервативный порог 60.
func (s *Scorer) ThresholdFor(regime string) float64 {
	if th, ok := s.cfg.Thresholds[regime]; ok {
		return th
	}
	return 60
}

// Score оценивает снапшот и возвращает сигнал, если конфлюэнс достаточен.
// Возвращает (nil, false) когда сигнала нет: мало истории, ничья голосов,
// порог не пройден или RR ниже минимума. Это не ошибки.
func (s *Scorer) Score(snap *Snapshot) (*models.Signal, bool) {
	if snap == nil || snap.Bars < s.cfg.MinBars {
		return nil, false
	}
	if snap.Price <= 0 || math.IsNaN(snap.Price) || math.IsInf(snap.Price, 0) {
		return nil, false
	}

	longScore := evaluateLong(snap)
	shortScore := evaluateShort(snap)

	// Направление - сторона с большим взвешенным голосом, ничья = нет сигнала
	var winner *ConfluenceScore
	var direction string
	switch {
	case longScore.Total() > shortScore.Total():
		winner, direction = longScore, models.DirectionLong
	case shortScore.Total() > longScore.Total():
		winner, direction = shortScore, models.DirectionShort
	default:
		return nil, false
	}

	regime := DetectRegime(snap)
	percentage := winner.Percentage()
	if percentage < s.ThresholdFor(regime) {
		return nil, false
	}

	entry := snap.Price
	stopDist := stopATRMultiplier(regime) * snap.ATR
	if stopDist <= 0 {
		return nil, false
	}

	var stopLoss, takeProfit float64
	if direction == models.DirectionLong {
		stopLoss = entry - stopDist
		takeProfit = entry + stopDist*s.cfg.RiskReward
	} else {
		stopLoss = entry + stopDist
		takeProfit = entry - stopDist*s.cfg.RiskReward
	}
	if stopLoss <= 0 || takeProfit <= 0 {
		return nil, false
	}

	sig := &models.Signal{
		Symbol:      snap.Symbol,
		Direction:   direction,
		EntryPrice:  entry,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		Score:       winner.Total(),
		MaxPossible: winner.MaxPossible(),
		Percentage:  percentage,
		Strength:    models.StrengthFor(percentage),
		Regime:      regime,
		Breakdown:   winner.Breakdown(),
		Reasoning:   winner.Reasons(),
		CreatedAt:   snap.Timestamp,
		ExpiresAt:   snap.Timestamp.Add(s.cfg.SignalTTL),
	}

	if rr := sig.RiskRewardRatio(); rr < s.cfg.MinRiskReward {
		return nil, false
	}

	// Предупреждения не блокируют сигнал, но попадают в событие решения
	if regime == models.RegimeVolatileChaos {
		sig.Warnings = append(sig.Warnings, "volatile regime, confirmation threshold raised")
	}
	if snap.VolumeRatio < 1.0 {
		sig.Warnings = append(sig.Warnings, "below-average volume")
	}

	if err := sig.Validate(); err != nil {
		return nil, false
	}
	return sig, true
}
