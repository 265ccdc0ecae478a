package risk

// Состояния circuit breaker
const (
	BreakerClosed   = "CLOSED"    // нормальная торговля
	BreakerHalfOpen = "HALF_OPEN" // испытательный режим после инцидента
	BreakerOpen     = "OPEN"      // торговля остановлена
)

// Уровни риска
const (
	LevelNormal    = "NORMAL"
	LevelElevated  = "ELEVATED"
	LevelHigh      = "HIGH"
	LevelCritical  = "CRITICAL"
	LevelEmergency = "EMERGENCY" // только ручная активация (panic close)
)

// ValidTransitions определяет допустимые переходы circuit breaker
var ValidTransitions = map[string][]string{
	BreakerClosed:   {BreakerOpen},
	BreakerHalfOpen: {BreakerClosed, BreakerOpen},
	BreakerOpen:     {BreakerHalfOpen, BreakerClosed}, // CLOSED только ручным сбросом
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния breaker для UI
func StateInfo(s string) string {
	switch s {
	case BreakerClosed:
		return "Торговля разрешена"
	case BreakerHalfOpen:
		return "Испытательный режим: следующий убыток снова остановит торговлю"
	case BreakerOpen:
		return "Торговля остановлена до следующего дня или ручного сброса"
	default:
		return "Неизвестное состояние"
	}
}

// LevelMultiplier возвращает множитель размера позиции для уровня риска
func LevelMultiplier(level string) float64 {
	switch level {
	case LevelNormal:
		return 1.0
	case LevelElevated:
		return 0.5
	case LevelHigh:
		return 0.25
	case LevelCritical, LevelEmergency:
		return 0.0
	default:
		return 0.0
	}
}

// IsTradingHalted возвращает true если торговля полностью запрещена
func IsTradingHalted(breakerState, level string) bool {
	return breakerState == BreakerOpen || level == LevelCritical || level == LevelEmergency
}
