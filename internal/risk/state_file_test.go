package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sniper/internal/models"
)

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := newStateStore(path)

	until := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	state := newState(10000, "2025-06-10")
	state.Capital = 9450
	state.DailyPnl = -550
	state.ConsecutiveLosses = 3
	state.BreakerState = BreakerOpen
	state.RiskLevel = LevelCritical
	state.CooldownUntil = &until
	state.OpenPositions["BTCUSDT"] = models.OpenPosition{
		Symbol:     "BTCUSDT",
		Side:       models.DirectionLong,
		EntryPrice: 45000,
		Notional:   2000,
		Score:      95,
		OpenedAt:   time.Date(2025, 6, 10, 12, 30, 0, 0, time.UTC),
	}

	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Capital != state.Capital {
		t.Errorf("Capital: ожидали %f, получили %f", state.Capital, loaded.Capital)
	}
	if loaded.BreakerState != BreakerOpen {
		t.Errorf("BreakerState: ожидали OPEN, получили %s", loaded.BreakerState)
	}
	if loaded.CooldownUntil == nil || !loaded.CooldownUntil.Equal(until) {
		t.Error("CooldownUntil должен сохраниться")
	}
	pos, ok := loaded.OpenPositions["BTCUSDT"]
	if !ok {
		t.Fatal("открытая позиция должна сохраниться")
	}
	if pos.Notional != 2000 {
		t.Errorf("Notional: ожидали 2000, получили %f", pos.Notional)
	}
}

func TestStateStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := newStateStore(filepath.Join(dir, "state.json"))

	if err := store.Save(newState(10000, "2025-06-10")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("в каталоге должен остаться только файл состояния, нашли %d файлов", len(entries))
	}
}

func TestStateStore_LoadRejectsCorruptState(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"не JSON", "garbage"},
		{"нулевой капитал", `{"capital": 0, "circuit_breaker_state": "CLOSED"}`},
		{"пустой breaker", `{"capital": 1000, "circuit_breaker_state": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := newStateStore(path).Load(); err == nil {
				t.Error("повреждённое состояние должно давать ошибку")
			}
		})
	}
}

func TestStateStore_LoadMissingFile(t *testing.T) {
	store := newStateStore(filepath.Join(t.TempDir(), "missing.json"))
	if _, err := store.Load(); err == nil {
		t.Error("отсутствующий файл должен давать ошибку")
	}
}

func TestState_DailyLossFraction(t *testing.T) {
	tests := []struct {
		name     string
		dayStart float64
		dailyPnl float64
		expected float64
	}{
		{"убыток 5.5%", 10000, -550, 0.055},
		{"день в плюсе", 10000, 300, 0},
		{"нулевой PnL", 10000, 0, 0},
		{"нулевой стартовый капитал", 0, -100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{DayStartCapital: tt.dayStart, DailyPnl: tt.dailyPnl}
			if got := s.DailyLossFraction(); got != tt.expected {
				t.Errorf("DailyLossFraction: ожидали %f, получили %f", tt.expected, got)
			}
		})
	}
}

func TestState_Drawdown(t *testing.T) {
	tests := []struct {
		name     string
		peak     float64
		capital  float64
		expected float64
	}{
		{"просадка 10%", 10000, 9000, 0.10},
		{"капитал на пике", 10000, 10000, 0},
		{"капитал выше пика не даёт отрицательной просадки", 10000, 11000, 0},
		{"нулевой пик", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{PeakCapital: tt.peak, Capital: tt.capital}
			if got := s.Drawdown(); got != tt.expected {
				t.Errorf("Drawdown: ожидали %f, получили %f", tt.expected, got)
			}
		})
	}
}
