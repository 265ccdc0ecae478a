package scoring

import "sniper/internal/models"

// regime.go - классификация рыночного режима
//
// Режим определяет минимальный порог конфлюэнса и множитель стопа:
// в хаотичном рынке требуется более сильное подтверждение, в узком
// диапазоне достаточно умеренного.

// DetectRegime классифицирует рыночный режим по снапшоту индикаторов.
// Порядок проверок важен: сначала волатильность (перекрывает всё),
// затем сила тренда, затем ширина диапазона.
func DetectRegime(snap *Snapshot) string {
	// Всплеск волатильности перекрывает любой тренд
	if snap.VolatilityRatio > 2.0 {
		return models.RegimeVolatileChaos
	}

	// Выраженный тренд по ADX с направлением по DI
	if snap.ADX > 25 {
		if snap.PlusDI > snap.MinusDI {
			return models.RegimeTrendingUp
		}
		return models.RegimeTrendingDown
	}

	// Флэт: узкий или широкий по ширине Bollinger
	if snap.BBWidth() < 0.04 {
		return models.RegimeRangingNarrow
	}
	return models.RegimeRangingWide
}

// stopATRMultiplier возвращает множитель ATR для стоп-лосса.
// В широком диапазоне стоп шире, чтобы не выбивало шумом.
func stopATRMultiplier(regime string) float64 {
	if regime == models.RegimeRangingWide {
		return 2.5
	}
	return 2.0
}
