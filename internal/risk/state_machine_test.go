package risk

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		expected bool
	}{
		{"CLOSED -> OPEN (срабатывание защиты)", BreakerClosed, BreakerOpen, true},
		{"CLOSED -> HALF_OPEN запрещён", BreakerClosed, BreakerHalfOpen, false},
		{"OPEN -> HALF_OPEN (новый день)", BreakerOpen, BreakerHalfOpen, true},
		{"OPEN -> CLOSED (ручной сброс)", BreakerOpen, BreakerClosed, true},
		{"HALF_OPEN -> CLOSED (выигрыш)", BreakerHalfOpen, BreakerClosed, true},
		{"HALF_OPEN -> OPEN (убыток)", BreakerHalfOpen, BreakerOpen, true},
		{"неизвестное состояние", "BROKEN", BreakerOpen, false},
		{"переход в себя запрещён", BreakerClosed, BreakerClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s): ожидали %v, получили %v", tt.from, tt.to, tt.expected, got)
			}
		})
	}
}

func TestLevelMultiplier(t *testing.T) {
	tests := []struct {
		level    string
		expected float64
	}{
		{LevelNormal, 1.0},
		{LevelElevated, 0.5},
		{LevelHigh, 0.25},
		{LevelCritical, 0.0},
		{LevelEmergency, 0.0},
		{"UNKNOWN", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := LevelMultiplier(tt.level); got != tt.expected {
				t.Errorf("LevelMultiplier(%s): ожидали %f, получили %f", tt.level, tt.expected, got)
			}
		})
	}
}

func TestIsTradingHalted(t *testing.T) {
	tests := []struct {
		name     string
		breaker  string
		level    string
		expected bool
	}{
		{"нормальный режим", BreakerClosed, LevelNormal, false},
		{"breaker открыт", BreakerOpen, LevelNormal, true},
		{"критический уровень", BreakerClosed, LevelCritical, true},
		{"аварийный режим", BreakerClosed, LevelEmergency, true},
		{"half-open не останавливает", BreakerHalfOpen, LevelElevated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTradingHalted(tt.breaker, tt.level); got != tt.expected {
				t.Errorf("IsTradingHalted(%s, %s): ожидали %v", tt.breaker, tt.level, tt.expected)
			}
		})
	}
}

func TestStateInfo_CoversAllStates(t *testing.T) {
	for _, s := range []string{BreakerClosed, BreakerHalfOpen, BreakerOpen, "GARBAGE"} {
		if StateInfo(s) == "" {
			t.Errorf("StateInfo(%s) не должен возвращать пустую строку", s)
		}
	}
}
