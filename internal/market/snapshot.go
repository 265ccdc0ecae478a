package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"sniper/internal/exchange"
	"sniper/internal/scoring"
	"sniper/pkg/utils"
)

// snapshot.go - сборка снапшота индикаторов из рыночных данных
//
// Builder - единственное место, где индикаторы встречаются с биржей:
// забирает свечи рабочего и старшего таймфреймов, фандинг и открытый
// интерес, считает индикаторы и отдает готовый снапшот скореру.

// Ошибки сборки снапшота
var (
	ErrNotEnoughHistory = errors.New("not enough candle history for indicators")
	ErrBadIndicator     = errors.New("indicator produced NaN")
)

// BuilderConfig - параметры сборки снапшота
type BuilderConfig struct {
	Interval       string // рабочий таймфрейм, например "15m"
	HigherInterval string // старший таймфрейм для трендового фильтра
	CandleLimit    int    // сколько свечей рабочего ТФ запрашивать
	HigherLimit    int    // сколько свечей старшего ТФ запрашивать

	EMAFastPeriod  int
	EMASlowPeriod  int
	EMATrendPeriod int
	RSIPeriod      int
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	BBPeriod       int
	BBStdDev       float64
	ADXPeriod      int
	ATRPeriod      int
	VolumeLookback int
	VolLookback    int // окно среднего ATR для VolatilityRatio

	OIInterval string // интервал истории открытого интереса
	OILimit    int
}

// DefaultBuilderConfig возвращает параметры по умолчанию
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Interval:       "15m",
		HigherInterval: "4h",
		CandleLimit:    200,
		HigherLimit:    60,
		EMAFastPeriod:  9,
		EMASlowPeriod:  21,
		EMATrendPeriod: 50,
		RSIPeriod:      14,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		BBPeriod:       20,
		BBStdDev:       2.0,
		ADXPeriod:      14,
		ATRPeriod:      14,
		VolumeLookback: 20,
		VolLookback:    50,
		OIInterval:     "5m",
		OILimit:        12,
	}
}

// Data - подмножество биржевого клиента, нужное для сборки снапшота
type Data interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
	GetOpenInterest(ctx context.Context, symbol, interval string, limit int) ([]exchange.OpenInterestPoint, error)
}

// Builder собирает снапшоты индикаторов для скоринга
type Builder struct {
	exchange Data
	cfg      BuilderConfig
	logger   *utils.Logger
}

// NewBuilder создает сборщик снапшотов
func NewBuilder(ex Data, cfg BuilderConfig, logger *utils.Logger) *Builder {
	if cfg.Interval == "" {
		cfg = DefaultBuilderConfig()
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Builder{
		exchange: ex,
		cfg:      cfg,
		logger:   logger.WithComponent("market"),
	}
}

// Build собирает снапшот индикаторов для символа.
// Возвращает ErrNotEnoughHistory если свечей меньше, чем нужно
// самому длинному индикатору.
func (b *Builder) Build(ctx context.Context, symbol string) (*scoring.Snapshot, error) {
	candles, err := b.exchange.GetCandles(ctx, symbol, b.cfg.Interval, b.cfg.CandleLimit)
	if err != nil {
		return nil, fmt.Errorf("get candles %s: %w", symbol, err)
	}

	minBars := b.minBars()
	if len(candles) < minBars {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d",
			ErrNotEnoughHistory, symbol, len(candles), minBars)
	}

	closes := Closes(candles)
	n := len(closes)

	emaFast := EMA(closes, b.cfg.EMAFastPeriod)
	emaSlow := EMA(closes, b.cfg.EMASlowPeriod)
	emaTrend := EMA(closes, b.cfg.EMATrendPeriod)
	rsi := RSI(closes, b.cfg.RSIPeriod)
	macdHist := MACDHist(closes, b.cfg.MACDFast, b.cfg.MACDSlow, b.cfg.MACDSignal)
	bbUpper, bbMiddle, bbLower := Bollinger(closes, b.cfg.BBPeriod, b.cfg.BBStdDev)
	adx, plusDI, minusDI := ADX(candles, b.cfg.ADXPeriod)
	atr := ATR(candles, b.cfg.ATRPeriod)

	snap := &scoring.Snapshot{
		Symbol: symbol,
		Price:  closes[n-1],
		Bars:   n,

		EMAFast:  emaFast[n-1],
		EMASlow:  emaSlow[n-1],
		EMATrend: emaTrend[n-1],

		RSI:          rsi[n-1],
		PrevRSI:      rsi[n-2],
		MACDHist:     macdHist[n-1],
		PrevMACDHist: macdHist[n-2],

		BBUpper:  bbUpper,
		BBMiddle: bbMiddle,
		BBLower:  bbLower,

		ADX:     adx,
		PlusDI:  plusDI,
		MinusDI: minusDI,

		ATR:             atr[n-1],
		VolatilityRatio: VolatilityRatio(candles, b.cfg.ATRPeriod, b.cfg.VolLookback),
		VolumeRatio:     VolumeRatio(candles, b.cfg.VolumeLookback),

		Timestamp: time.Now(),
	}
	snap.Support, snap.Resistance = SwingLevels(candles)

	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	// Старший таймфрейм: ошибка не фатальна, тренд просто нейтрален
	higher, err := b.exchange.GetCandles(ctx, symbol, b.cfg.HigherInterval, b.cfg.HigherLimit)
	if err != nil {
		b.logger.Warn("higher timeframe unavailable, assuming neutral bias",
			utils.Symbol(symbol), utils.Err(err))
	} else {
		snap.HigherTFBias = TrendBias(higher)
	}

	funding, err := b.exchange.GetFundingRate(ctx, symbol)
	if err != nil {
		b.logger.Warn("funding rate unavailable", utils.Symbol(symbol), utils.Err(err))
	} else {
		snap.FundingRate = funding
	}

	snap.OIDelta = b.openInterestDelta(ctx, symbol)

	return snap, nil
}

// openInterestDelta возвращает изменение открытого интереса в
// процентах за окно истории. При недоступности данных - 0.
func (b *Builder) openInterestDelta(ctx context.Context, symbol string) float64 {
	points, err := b.exchange.GetOpenInterest(ctx, symbol, b.cfg.OIInterval, b.cfg.OILimit)
	if err != nil {
		b.logger.Warn("open interest unavailable", utils.Symbol(symbol), utils.Err(err))
		return 0
	}
	if len(points) < 2 {
		return 0
	}

	first := points[0].OpenInterest
	last := points[len(points)-1].OpenInterest
	if first == 0 {
		return 0
	}
	return utils.PercentChange(first, last)
}

// minBars возвращает минимум истории для самого длинного индикатора
func (b *Builder) minBars() int {
	min := b.cfg.EMATrendPeriod
	if v := b.cfg.MACDSlow + b.cfg.MACDSignal; v > min {
		min = v
	}
	if v := 2*b.cfg.ADXPeriod + 1; v > min {
		min = v
	}
	if v := b.cfg.BBPeriod; v > min {
		min = v
	}
	return min
}

// validateSnapshot отклоняет снапшот с NaN в обязательных полях
func validateSnapshot(s *scoring.Snapshot) error {
	fields := map[string]float64{
		"rsi":       s.RSI,
		"prev_rsi":  s.PrevRSI,
		"bb_upper":  s.BBUpper,
		"bb_middle": s.BBMiddle,
		"bb_lower":  s.BBLower,
		"adx":       s.ADX,
		"atr":       s.ATR,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s for %s", ErrBadIndicator, name, s.Symbol)
		}
	}
	return nil
}
