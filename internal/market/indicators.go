package market

import (
	"math"

	"sniper/internal/exchange"
)

// indicators.go - технические индикаторы по свечной истории
//
// Все функции чистые: принимают срезы (от старых баров к новым),
// возвращают серии той же длины. Значения, для которых не хватает
// истории, заполняются NaN - вызывающий код обязан проверять хвост
// серии перед использованием.

// Closes извлекает цены закрытия из свечей
func Closes(candles []exchange.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// EMA вычисляет экспоненциальную скользящую среднюю.
// Первое значение серии - первая цена (рекурсивное сглаживание).
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}

	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA вычисляет простую скользящую среднюю.
// Первые period-1 значений - NaN.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RSI вычисляет индекс относительной силы по скользящему среднему
// приростов и падений. Первые period значений - NaN.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}

		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACDHist вычисляет гистограмму MACD (линия MACD минус сигнальная)
func MACDHist(closes []float64, fast, slow, signal int) []float64 {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	macdLine := make([]float64, len(closes))
	for i := range macdLine {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}

	signalLine := EMA(macdLine, signal)
	hist := make([]float64, len(closes))
	for i := range hist {
		hist[i] = macdLine[i] - signalLine[i]
	}
	return hist
}

// Bollinger вычисляет полосы Боллинджера по последнему окну.
// Возвращает верхнюю, среднюю и нижнюю полосы. Если истории меньше
// periода, все значения NaN.
func Bollinger(closes []float64, period int, stdDev float64) (upper, middle, lower float64) {
	if period <= 1 || len(closes) < period {
		nan := math.NaN()
		return nan, nan, nan
	}

	window := closes[len(closes)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	// Выборочная дисперсия (делитель n-1)
	std := math.Sqrt(variance / float64(period-1))

	return mean + stdDev*std, mean, mean - stdDev*std
}

// TrueRange вычисляет серию истинного диапазона
func TrueRange(candles []exchange.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr := c.High - c.Low
		if hc := math.Abs(c.High - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(c.Low - prevClose); lc > tr {
			tr = lc
		}
		out[i] = tr
	}
	return out
}

// ATR вычисляет средний истинный диапазон (скользящее среднее TR)
func ATR(candles []exchange.Candle, period int) []float64 {
	return SMA(TrueRange(candles), period)
}

// ADX вычисляет индекс направленного движения по последнему бару.
// Возвращает ADX, +DI и -DI. При нехватке истории все значения NaN.
func ADX(candles []exchange.Candle, period int) (adx, plusDI, minusDI float64) {
	nan := math.NaN()
	// Нужно 2*period баров: period на DI и еще period на сглаживание DX
	if period <= 0 || len(candles) < 2*period+1 {
		return nan, nan, nan
	}

	n := len(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	atr := ATR(candles, period)
	plusSmooth := SMA(plusDM, period)
	minusSmooth := SMA(minusDM, period)

	dx := make([]float64, n)
	for i := range dx {
		dx[i] = math.NaN()
	}
	plusSeries := make([]float64, n)
	minusSeries := make([]float64, n)
	for i := period; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			continue
		}
		pdi := 100 * plusSmooth[i] / atr[i]
		mdi := 100 * minusSmooth[i] / atr[i]
		plusSeries[i] = pdi
		minusSeries[i] = mdi
		if pdi+mdi > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
	}

	// ADX = среднее DX за period последних баров
	var dxSum float64
	var dxCount int
	for i := n - period; i < n; i++ {
		if math.IsNaN(dx[i]) {
			continue
		}
		dxSum += dx[i]
		dxCount++
	}
	if dxCount == 0 {
		return nan, plusSeries[n-1], minusSeries[n-1]
	}
	return dxSum / float64(dxCount), plusSeries[n-1], minusSeries[n-1]
}

// VolumeRatio возвращает отношение объема последнего бара к среднему
// объему предыдущих lookback баров. 1.0 = норма.
func VolumeRatio(candles []exchange.Candle, lookback int) float64 {
	if lookback <= 0 || len(candles) < lookback+1 {
		return 1.0
	}

	last := candles[len(candles)-1].Volume
	var sum float64
	for _, c := range candles[len(candles)-1-lookback : len(candles)-1] {
		sum += c.Volume
	}
	avg := sum / float64(lookback)
	if avg == 0 {
		return 1.0
	}
	return last / avg
}

// VolatilityRatio возвращает отношение текущего ATR к среднему ATR за
// более длинное окно. Показывает расширение/сжатие волатильности.
func VolatilityRatio(candles []exchange.Candle, period, lookback int) float64 {
	atr := ATR(candles, period)
	n := len(atr)
	if n == 0 || math.IsNaN(atr[n-1]) {
		return 1.0
	}

	var sum float64
	var count int
	start := n - lookback
	if start < 0 {
		start = 0
	}
	for _, v := range atr[start:] {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 || sum == 0 {
		return 1.0
	}
	avg := sum / float64(count)
	return atr[n-1] / avg
}

// SwingLevels находит ближайшие поддержку и сопротивление по локальным
// экстремумам (фрактал из 5 баров: экстремум выше/ниже двух соседей с
// каждой стороны). Если уровня по нужную сторону от цены нет,
// возвращается 0.
func SwingLevels(candles []exchange.Candle) (support, resistance float64) {
	if len(candles) < 5 {
		return 0, 0
	}

	price := candles[len(candles)-1].Close

	for i := 2; i < len(candles)-2; i++ {
		h := candles[i].High
		if h > candles[i-1].High && h > candles[i-2].High &&
			h > candles[i+1].High && h > candles[i+2].High {
			// Ближайшее сопротивление выше цены
			if h > price && (resistance == 0 || h < resistance) {
				resistance = h
			}
		}

		l := candles[i].Low
		if l < candles[i-1].Low && l < candles[i-2].Low &&
			l < candles[i+1].Low && l < candles[i+2].Low {
			// Ближайшая поддержка ниже цены
			if l < price && l > support {
				support = l
			}
		}
	}
	return support, resistance
}

// TrendBias оценивает направление тренда по структуре рынка в
// диапазоне [-100..100]: положительное значение - бычье.
//
// Комбинирует наклон EMA 8/21 и долю higher highs / lower lows за
// последние 20 баров.
func TrendBias(candles []exchange.Candle) float64 {
	if len(candles) < 20 {
		return 0
	}

	recent := candles[len(candles)-20:]
	closes := Closes(recent)

	emaFast := EMA(closes, 8)
	emaSlow := EMA(closes, 21)
	fast := emaFast[len(emaFast)-1]
	slow := emaSlow[len(emaSlow)-1]
	if slow == 0 {
		return 0
	}
	emaDiffPct := (fast - slow) / slow * 100

	var hhCount, llCount int
	for i := 1; i < len(recent); i++ {
		if recent[i].High > recent[i-1].High {
			hhCount++
		}
		if recent[i].Low < recent[i-1].Low {
			llCount++
		}
	}
	hhRatio := float64(hhCount) / float64(len(recent)-1)
	llRatio := float64(llCount) / float64(len(recent)-1)

	switch {
	case emaDiffPct > 1.5 && hhRatio > 0.6:
		return 100
	case emaDiffPct > 0.5 && hhRatio > 0.5:
		return 50
	case emaDiffPct < -1.5 && llRatio > 0.6:
		return -100
	case emaDiffPct < -0.5 && llRatio > 0.5:
		return -50
	default:
		return 0
	}
}
