package sizing

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"sniper/internal/exchange"
	"sniper/internal/models"
	"sniper/pkg/utils"
)

// sizer.go - расчёт размера позиции и плеча
//
// Пайплайн риска: базовая доля (конфиг или Келли) -> поправка на
// волатильность -> масштабирование RiskManager'ом -> расчёт нотионала
// от дистанции стопа -> округление до шага биржи -> проверка маржи
// с автоматическим уменьшением под доступный баланс.
//
// Любой отказ - значение (Rejected + Reason), не ошибка.

// Причины отказа сайзинга
const (
	ReasonZeroRiskFraction = "risk fraction is zero"
	ReasonZeroStopDistance = "stop loss equals entry price"
	ReasonBelowMinNotional = "notional below exchange minimum"
	ReasonBelowMinQty      = "quantity below exchange minimum after rounding"
	ReasonAnomalousQty     = "anomalous quantity, aborting to protect capital"
	ReasonInsufficientFund = "insufficient funds for required margin"
)

// Config - параметры сайзера
type Config struct {
	DefaultRiskPct   float64 // базовый риск на сделку в %, если Келли недоступен
	MinRiskPct       float64 // нижняя граница риска в %
	MaxRiskPct       float64 // верхняя граница риска в %
	KellyFraction    float64 // консервативная доля полного Келли
	MinKellyTrades   int     // минимум сделок в истории для Келли
	ATRHighThreshold float64 // ATR% выше - режем риск и плечо
	ATRLowThreshold  float64 // ATR% ниже - слегка поднимаем риск
	MaxLeverage      int     // потолок плеча в спокойном рынке
	MinStopDistance  float64 // пол дистанции стопа в долях (0.005 = 0.5%)
	HardCapUSD       float64 // жёсткий потолок нотионала
	MarginBuffer     float64 // доля доступного баланса под маржу
	AnomalyQtyLimit  float64 // отсечка аномального количества
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		DefaultRiskPct:   2.0,
		MinRiskPct:       0.5,
		MaxRiskPct:       10.0,
		KellyFraction:    0.25,
		MinKellyTrades:   30,
		ATRHighThreshold: 0.03,
		ATRLowThreshold:  0.01,
		MaxLeverage:      5,
		MinStopDistance:  0.005,
		HardCapUSD:       100000,
		MarginBuffer:     0.95,
		AnomalyQtyLimit:  1e12,
	}
}

// KellyInput - статистика для формулы Келли
type KellyInput struct {
	WinRate float64 // в долях [0..1]
	AvgWin  float64
	AvgLoss float64 // по модулю
	Trades  int
}

// Account - состояние счёта на момент расчёта
type Account struct {
	Capital   float64 // equity
	Available float64 // свободная маржа
}

// Sizer рассчитывает параметры ордера
type Sizer struct {
	cfg    Config
	logger *zap.Logger
}

// NewSizer создает сайзер
func NewSizer(cfg Config, logger *zap.Logger) *Sizer {
	return &Sizer{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "sizer")),
	}
}

// KellyRiskPct возвращает риск на сделку в процентах по формуле Келли:
// K = (W*R - L) / R, где R = avgWin/avgLoss.
// При недостаточной истории возвращается DefaultRiskPct; результат
// умножается на консервативную долю и обрезается в [MinRiskPct, MaxRiskPct].
func (s *Sizer) KellyRiskPct(in KellyInput) float64 {
	if in.Trades < s.cfg.MinKellyTrades || in.AvgWin <= 0 || in.AvgLoss <= 0 {
		return s.cfg.DefaultRiskPct
	}

	r := in.AvgWin / in.AvgLoss
	kelly := (in.WinRate*r - (1 - in.WinRate)) / r
	if kelly <= 0 {
		// Отрицательный Келли: статистика против нас, торгуем минимумом
		return s.cfg.MinRiskPct
	}

	pct := kelly * s.cfg.KellyFraction * 100
	return utils.Clamp(pct, s.cfg.MinRiskPct, s.cfg.MaxRiskPct)
}

// VolatilityAdjustedRiskPct корректирует риск по текущему ATR%:
// высокая волатильность режет риск вдвое, очень низкая - слегка поднимает.
func (s *Sizer) VolatilityAdjustedRiskPct(atrPct, basePct float64) float64 {
	switch {
	case atrPct > s.cfg.ATRHighThreshold:
		return basePct * 0.5
	case atrPct > 0 && atrPct < s.cfg.ATRLowThreshold:
		return basePct * 1.25
	default:
		return basePct
	}
}

// DynamicLeverage выбирает плечо по волатильности: чем выше ATR%,
// тем ниже плечо.
func (s *Sizer) DynamicLeverage(atrPct float64) int {
	switch {
	case atrPct > s.cfg.ATRHighThreshold:
		return 2
	case atrPct > s.cfg.ATRLowThreshold:
		return 3
	default:
		if s.cfg.MaxLeverage < 5 {
			return s.cfg.MaxLeverage
		}
		return 5
	}
}

// Calculate рассчитывает количество, плечо и маржу для сигнала.
// finalFraction - итоговая доля риска (после Келли, волатильности и
// RiskManager), limits - точность инструмента с биржи.
func (s *Sizer) Calculate(sig *models.Signal, acct Account, atrPct, finalFraction float64, limits *exchange.Limits) models.SizingResult {
	if finalFraction <= 0 {
		return models.RejectSizing(ReasonZeroRiskFraction)
	}
	if acct.Capital <= 0 {
		return models.RejectSizing(ReasonInsufficientFund)
	}

	riskUSD := acct.Capital * finalFraction

	// Дистанция до стопа в долях от цены входа
	stopDist := math.Abs(sig.EntryPrice-sig.StopLoss) / sig.EntryPrice
	if stopDist == 0 {
		return models.RejectSizing(ReasonZeroStopDistance)
	}
	if stopDist < s.cfg.MinStopDistance {
		// Пол против взрывного деления на близкий стоп
		s.logger.Info("Stop distance floored",
			zap.String("symbol", sig.Symbol),
			zap.Float64("raw", stopDist),
			zap.Float64("floor", s.cfg.MinStopDistance))
		stopDist = s.cfg.MinStopDistance
	}

	notional := riskUSD / stopDist

	// Потолки: лимит плеча от капитала и жёсткий лимит из конфига
	maxNotional := math.Min(acct.Capital*float64(s.cfg.MaxLeverage), s.cfg.HardCapUSD)
	if notional > maxNotional {
		s.logger.Info("Notional capped",
			zap.String("symbol", sig.Symbol),
			zap.Float64("calculated", notional),
			zap.Float64("cap", maxNotional))
		notional = maxNotional
	}

	if limits.MinNotional > 0 && notional < limits.MinNotional {
		return models.RejectSizing(fmt.Sprintf("%s (%.2f < %.2f)", ReasonBelowMinNotional, notional, limits.MinNotional))
	}

	qty := notional / sig.EntryPrice

	// Аномально огромное количество означает путаницу в единицах цены
	if qty > s.cfg.AnomalyQtyLimit {
		return models.RejectSizing(ReasonAnomalousQty)
	}
	if limits.MaxOrderQty > 0 && qty > limits.MaxOrderQty {
		qty = limits.MaxOrderQty
	}

	qty = utils.RoundToLotSize(qty, limits.QtyStep)
	if qty < limits.MinOrderQty {
		return models.RejectSizing(fmt.Sprintf("%s (%.8f < %.8f)", ReasonBelowMinQty, qty, limits.MinOrderQty))
	}

	leverage := s.DynamicLeverage(atrPct)
	margin := qty * sig.EntryPrice / float64(leverage)

	// Маржа не влезает - уменьшаем позицию под буфер доступного баланса
	if usable := acct.Available * s.cfg.MarginBuffer; margin > usable {
		oldQty := qty
		qty = utils.RoundToLotSize(usable*float64(leverage)/sig.EntryPrice, limits.QtyStep)
		if qty < limits.MinOrderQty {
			return models.RejectSizing(fmt.Sprintf("%s (have %.2f, need %.2f)",
				ReasonInsufficientFund, acct.Available, limits.MinOrderQty*sig.EntryPrice/float64(leverage)))
		}
		margin = qty * sig.EntryPrice / float64(leverage)
		s.logger.Warn("Position downsized to fit available margin",
			zap.String("symbol", sig.Symbol),
			zap.Float64("old_qty", oldQty),
			zap.Float64("new_qty", qty),
			zap.Float64("margin", margin))
	}

	return models.SizingResult{
		Quantity: qty,
		Leverage: leverage,
		Notional: qty * sig.EntryPrice,
		Margin:   margin,
		RiskUSD:  riskUSD,
		RiskPct:  finalFraction * 100,
	}
}
