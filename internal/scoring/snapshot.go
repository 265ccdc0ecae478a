package scoring

import "time"

// Snapshot - фиксированный набор предрассчитанных индикаторов по одному
// символу на один момент времени. Скорер работает только с этими данными,
// без обращений к сети или истории.
type Snapshot struct {
	Symbol string
	Price  float64
	Bars   int // количество баров истории, по которым считались индикаторы

	// Трендовые EMA (быстрая/медленная/трендовая, обычно 9/21/50)
	EMAFast  float64
	EMASlow  float64
	EMATrend float64

	// Осцилляторы
	RSI          float64
	PrevRSI      float64
	MACDHist     float64
	PrevMACDHist float64

	// Bollinger Bands
	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	// Сила тренда
	ADX     float64
	PlusDI  float64
	MinusDI float64

	// Волатильность
	ATR             float64
	VolatilityRatio float64 // текущий ATR / средний ATR (1.0 = норма)

	// Объём
	VolumeRatio float64 // текущий объём / средний объём

	// Уровни
	Support    float64
	Resistance float64

	// Перп-специфика
	FundingRate float64 // в долях, 0.0001 = 0.01%
	OIDelta     float64 // изменение открытого интереса в процентах

	// Согласие старшего таймфрейма: [-100..100], положительное = бычье
	HigherTFBias float64

	Timestamp time.Time
}

// BBWidth возвращает относительную ширину полос Боллинджера
func (s *Snapshot) BBWidth() float64 {
	if s.BBMiddle == 0 {
		return 0
	}
	return (s.BBUpper - s.BBLower) / s.BBMiddle
}

// ATRPercent возвращает ATR как долю от цены
func (s *Snapshot) ATRPercent() float64 {
	if s.Price == 0 {
		return 0
	}
	return s.ATR / s.Price
}
