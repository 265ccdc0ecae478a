package scoring

// factors.go - вклады отдельных факторов в конфлюэнс-счёт
//
// Каноническая таблица весов (сумма максимумов = 145):
//   trend 20, momentum 15, macd 15, bollinger 10, volume 15,
//   levels 15, adx 15, funding 10, mtf 20, open_interest 10

// Максимумы факторов
const (
	maxTrend     = 20
	maxMomentum  = 15
	maxMACD      = 15
	maxBollinger = 10
	maxVolume    = 15
	maxLevels    = 15
	maxADX       = 15
	maxFunding   = 10
	maxMTF       = 20
	maxOI        = 10

	// MaxPossibleScore - сумма максимумов всех факторов
	MaxPossibleScore = maxTrend + maxMomentum + maxMACD + maxBollinger +
		maxVolume + maxLevels + maxADX + maxFunding + maxMTF + maxOI
)

// evaluateLong набирает баллы в пользу LONG
func evaluateLong(snap *Snapshot) *ConfluenceScore {
	cs := NewConfluenceScore()

	// Тренд: выравнивание EMA снизу вверх
	trend := 0
	switch {
	case snap.Price > snap.EMAFast && snap.EMAFast > snap.EMASlow && snap.EMASlow > snap.EMATrend:
		trend = maxTrend // полное бычье выравнивание
	case snap.Price > snap.EMATrend && snap.EMAFast > snap.EMASlow:
		trend = 12
	case snap.Price > snap.EMATrend:
		trend = 6
	}
	cs.AddFactor("trend", trend, maxTrend)

	// RSI: перепроданность или восстановление из неё
	momentum := 0
	switch {
	case snap.RSI < 30:
		momentum = maxMomentum
	case snap.RSI < 40 && snap.RSI > snap.PrevRSI:
		momentum = 10
	case snap.RSI < 50 && snap.RSI > snap.PrevRSI:
		momentum = 5
	}
	cs.AddFactor("momentum", momentum, maxMomentum)

	// MACD: гистограмма растёт и/или положительна
	macd := 0
	rising := snap.MACDHist > snap.PrevMACDHist
	switch {
	case snap.MACDHist > 0 && rising:
		macd = maxMACD
	case rising:
		macd = 10 // разворот снизу
	case snap.MACDHist > 0:
		macd = 6
	}
	cs.AddFactor("macd", macd, maxMACD)

	// Bollinger: цена у нижней полосы - зона покупки
	bb := 0
	switch {
	case snap.BBLower > 0 && snap.Price <= snap.BBLower:
		bb = maxBollinger
	case snap.BBMiddle > 0 && snap.Price < snap.BBMiddle:
		bb = 5
	}
	cs.AddFactor("bollinger", bb, maxBollinger)

	cs.AddFactor("volume", volumeScore(snap.VolumeRatio), maxVolume)

	// Близость поддержки
	levels := 0
	if snap.Support > 0 && snap.Price > snap.Support {
		dist := (snap.Price - snap.Support) / snap.Price
		switch {
		case dist < 0.005:
			levels = maxLevels
		case dist < 0.01:
			levels = 10
		case dist < 0.02:
			levels = 5
		}
	}
	cs.AddFactor("levels", levels, maxLevels)

	// ADX с доминирующим +DI
	adx := 0
	if snap.PlusDI > snap.MinusDI {
		switch {
		case snap.ADX > 25:
			adx = maxADX
		case snap.ADX > 20:
			adx = 8
		}
	}
	cs.AddFactor("adx", adx, maxADX)

	// Отрицательный фандинг - шорты платят лонгам, толпа на короткой стороне
	funding := 0
	switch {
	case snap.FundingRate <= -0.0001:
		funding = maxFunding
	case snap.FundingRate < 0:
		funding = 5
	}
	cs.AddFactor("funding", funding, maxFunding)

	// Согласие старшего таймфрейма
	mtf := 0
	switch {
	case snap.HigherTFBias >= 50:
		mtf = maxMTF
	case snap.HigherTFBias >= 25:
		mtf = 10
	}
	cs.AddFactor("mtf", mtf, maxMTF)

	// Рост открытого интереса подтверждает движение
	oi := 0
	switch {
	case snap.OIDelta >= 2:
		oi = maxOI
	case snap.OIDelta >= 0.5:
		oi = 5
	}
	cs.AddFactor("open_interest", oi, maxOI)

	return cs
}

// evaluateShort набирает баллы в пользу SHORT
func evaluateShort(snap *Snapshot) *ConfluenceScore {
	cs := NewConfluenceScore()

	trend := 0
	switch {
	case snap.Price < snap.EMAFast && snap.EMAFast < snap.EMASlow && snap.EMASlow < snap.EMATrend:
		trend = maxTrend // полное медвежье выравнивание
	case snap.Price < snap.EMATrend && snap.EMAFast < snap.EMASlow:
		trend = 12
	case snap.Price < snap.EMATrend:
		trend = 6
	}
	cs.AddFactor("trend", trend, maxTrend)

	// RSI: перекупленность или откат из неё
	momentum := 0
	switch {
	case snap.RSI > 70:
		momentum = maxMomentum
	case snap.RSI > 60 && snap.RSI < snap.PrevRSI:
		momentum = 10
	case snap.RSI > 50 && snap.RSI < snap.PrevRSI:
		momentum = 5
	}
	cs.AddFactor("momentum", momentum, maxMomentum)

	macd := 0
	falling := snap.MACDHist < snap.PrevMACDHist
	switch {
	case snap.MACDHist < 0 && falling:
		macd = maxMACD
	case falling:
		macd = 10
	case snap.MACDHist < 0:
		macd = 6
	}
	cs.AddFactor("macd", macd, maxMACD)

	bb := 0
	switch {
	case snap.BBUpper > 0 && snap.Price >= snap.BBUpper:
		bb = maxBollinger
	case snap.BBMiddle > 0 && snap.Price > snap.BBMiddle:
		bb = 5
	}
	cs.AddFactor("bollinger", bb, maxBollinger)

	cs.AddFactor("volume", volumeScore(snap.VolumeRatio), maxVolume)

	// Близость сопротивления
	levels := 0
	if snap.Resistance > 0 && snap.Price < snap.Resistance {
		dist := (snap.Resistance - snap.Price) / snap.Price
		switch {
		case dist < 0.005:
			levels = maxLevels
		case dist < 0.01:
			levels = 10
		case dist < 0.02:
			levels = 5
		}
	}
	cs.AddFactor("levels", levels, maxLevels)

	adx := 0
	if snap.MinusDI > snap.PlusDI {
		switch {
		case snap.ADX > 25:
			adx = maxADX
		case snap.ADX > 20:
			adx = 8
		}
	}
	cs.AddFactor("adx", adx, maxADX)

	// Экстремально положительный фандинг - толпа в лонгах
	funding := 0
	switch {
	case snap.FundingRate >= 0.0001:
		funding = maxFunding
	case snap.FundingRate > 0:
		funding = 5
	}
	cs.AddFactor("funding", funding, maxFunding)

	mtf := 0
	switch {
	case snap.HigherTFBias <= -50:
		mtf = maxMTF
	case snap.HigherTFBias <= -25:
		mtf = 10
	}
	cs.AddFactor("mtf", mtf, maxMTF)

	// Падение OI на росте не подтверждает шорт, рост OI на падении - да
	oi := 0
	switch {
	case snap.OIDelta >= 2:
		oi = maxOI
	case snap.OIDelta >= 0.5:
		oi = 5
	}
	cs.AddFactor("open_interest", oi, maxOI)

	return cs
}

// volumeScore - общий для обоих направлений вклад объёма
func volumeScore(ratio float64) int {
	switch {
	case ratio >= 2.0:
		return maxVolume
	case ratio >= 1.5:
		return 10
	case ratio >= 1.2:
		return 5
	default:
		return 0
	}
}
