package risk

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"sniper/internal/models"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StatePath = filepath.Join(t.TempDir(), "risk_state.json")
	return cfg
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager(cfg, zap.NewNop())
	// Фиксированное время, чтобы границы дня не плавали в тестах
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	// Состояние могло создаться с реальной датой
	m.state.LastResetDate = "2025-06-10"
	return m
}

// setClock сдвигает часы менеджера на фиксированный момент
func setClock(m *Manager, at time.Time) {
	m.now = func() time.Time { return at }
}

func mustRegister(t *testing.T, m *Manager, symbol string) {
	t.Helper()
	if err := m.RegisterPosition(symbol, models.DirectionLong, 100, 1000, 90); err != nil {
		t.Fatalf("RegisterPosition(%s): %v", symbol, err)
	}
}

// ============ CanOpenTrade: порядок проверок ============

func TestManager_AllowsTradeInNormalState(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	allowed, reason := m.CanOpenTrade("BTCUSDT", 1000, 1, 1)
	if !allowed {
		t.Fatalf("сделка должна быть разрешена, причина отказа: %s", reason)
	}
	if reason != "" {
		t.Errorf("в CLOSED причин быть не должно, получили: %s", reason)
	}
}

func TestManager_RejectsWhenBreakerOpen(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	m.state.BreakerState = BreakerOpen

	allowed, reason := m.CanOpenTrade("BTCUSDT", 1000, 1, 1)
	if allowed {
		t.Fatal("сделка должна быть отклонена при открытом breaker")
	}
	if reason != ReasonBreakerOpen {
		t.Errorf("Reason: ожидали '%s', получили '%s'", ReasonBreakerOpen, reason)
	}
}

func TestManager_RejectsDuplicateSymbol(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	mustRegister(t, m, "BTCUSDT")

	allowed, reason := m.CanOpenTrade("BTCUSDT", 1000, 1, 1)
	if allowed {
		t.Fatal("дубликат символа должен быть отклонён")
	}
	if reason != ReasonSymbolOpen {
		t.Errorf("Reason: ожидали '%s', получили '%s'", ReasonSymbolOpen, reason)
	}
}

func TestManager_RejectsAtMaxPositions(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxOpenPositions = 2
	m := newTestManager(t, cfg)
	mustRegister(t, m, "BTCUSDT")
	mustRegister(t, m, "ETHUSDT")

	allowed, _ := m.CanOpenTrade("SOLUSDT", 1000, 1, 1)
	if allowed {
		t.Fatal("сделка должна быть отклонена при достижении лимита позиций")
	}
}

func TestManager_RejectsOversizedNotional(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	// 10000 * 0.30 = 3000 максимум
	allowed, _ := m.CanOpenTrade("BTCUSDT", 3500, 1, 1)
	if allowed {
		t.Fatal("нотионал выше максимальной доли капитала должен быть отклонён")
	}
}

func TestManager_RejectsVolatilitySpike(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	allowed, _ := m.CanOpenTrade("BTCUSDT", 1000, 5.0, 2.0) // 2.5x > 2.0
	if allowed {
		t.Fatal("всплеск волатильности выше отсечки должен быть отклонён")
	}

	allowed, _ = m.CanOpenTrade("BTCUSDT", 1000, 3.0, 2.0) // 1.5x
	if !allowed {
		t.Fatal("волатильность ниже отсечки должна проходить")
	}
}

// ============ Сценарий спуска дневного лимита ============

func TestManager_DailyLossTripsBreaker(t *testing.T) {
	// Капитал $10,000, дневной лимит 5%: три убытка -200, -200, -150
	// дают -$550 = 5.5% и переводят breaker в OPEN
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	for i, pnl := range []float64{-200, -200, -150} {
		symbol := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}[i]
		mustRegister(t, m, symbol)
		if err := m.ClosePosition(symbol, 95, pnl); err != nil {
			t.Fatalf("ClosePosition(%s): %v", symbol, err)
		}
	}

	snap := m.Snapshot()
	if snap.BreakerState != BreakerOpen {
		t.Errorf("breaker должен быть OPEN после убытка 5.5%%, получили %s", snap.BreakerState)
	}

	allowed, _ := m.CanOpenTrade("ANYUSDT", 100, 1, 1)
	if allowed {
		t.Fatal("CanOpenTrade должен отклонять любой символ после пробоя дневного лимита")
	}
}

func TestManager_DrawdownTripsBreaker(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxDrawdown = 0.10
	cfg.DailyLossLimit = 0.50 // исключаем дневной лимит из сценария
	cfg.MaxConsecutiveLosses = 100
	m := newTestManager(t, cfg)

	mustRegister(t, m, "BTCUSDT")
	if err := m.ClosePosition("BTCUSDT", 90, -1100); err != nil { // 11% от пика
		t.Fatal(err)
	}

	if m.Snapshot().BreakerState != BreakerOpen {
		t.Error("breaker должен открыться при просадке выше лимита")
	}
}

// ============ Cooldown ============

func TestManager_CooldownAfterConsecutiveLosses(t *testing.T) {
	cfg := testConfig(t)
	cfg.DailyLossLimit = 0.50 // лимиты не мешают тесту кулдауна
	cfg.MaxDrawdown = 0.50
	m := newTestManager(t, cfg)
	start := m.now()

	// Три убытка подряд (порог по умолчанию 3)
	for _, symbol := range []string{"AUSDT", "BUSDT", "CUSDT"} {
		mustRegister(t, m, symbol)
		if err := m.ClosePosition(symbol, 99, -10); err != nil {
			t.Fatal(err)
		}
	}

	allowed, reason := m.CanOpenTrade("DUSDT", 100, 1, 1)
	if allowed {
		t.Fatal("кулдаун должен блокировать новые входы")
	}
	if reason == "" {
		t.Error("отказ по кулдауну должен содержать причину")
	}

	// До истечения кулдауна - всё ещё запрещено
	setClock(m, start.Add(30*time.Minute))
	if allowed, _ := m.CanOpenTrade("DUSDT", 100, 1, 1); allowed {
		t.Fatal("кулдаун ещё не истёк")
	}

	// После истечения - разрешено, серия убытков прощена
	setClock(m, start.Add(61*time.Minute))
	allowed, _ = m.CanOpenTrade("DUSDT", 100, 1, 1)
	if !allowed {
		t.Fatal("после истечения кулдауна торговля должна возобновиться")
	}
	if m.Snapshot().ConsecutiveLosses != 0 {
		t.Error("серия убытков должна обнулиться после кулдауна")
	}
}

func TestManager_WinClearsCooldownAndStreak(t *testing.T) {
	cfg := testConfig(t)
	cfg.DailyLossLimit = 0.50
	cfg.MaxDrawdown = 0.50
	m := newTestManager(t, cfg)

	for _, symbol := range []string{"AUSDT", "BUSDT", "CUSDT"} {
		mustRegister(t, m, symbol)
		_ = m.ClosePosition(symbol, 99, -10)
	}
	if m.Snapshot().CooldownUntil == nil {
		t.Fatal("кулдаун должен был активироваться")
	}

	mustRegister(t, m, "DUSDT")
	if err := m.ClosePosition("DUSDT", 105, 50); err != nil {
		t.Fatal(err)
	}

	snap := m.Snapshot()
	if snap.ConsecutiveLosses != 0 {
		t.Error("выигрыш должен обнулять серию убытков")
	}
	if snap.CooldownUntil != nil {
		t.Error("выигрыш должен снимать кулдаун")
	}
}

// ============ HALF_OPEN испытательный режим ============

func TestManager_HalfOpenProbation(t *testing.T) {
	cfg := testConfig(t)
	cfg.DailyLossLimit = 0.50
	cfg.MaxDrawdown = 0.50
	m := newTestManager(t, cfg)
	m.state.BreakerState = BreakerHalfOpen

	// В HALF_OPEN торговать можно, но с оговоркой
	allowed, reason := m.CanOpenTrade("BTCUSDT", 100, 1, 1)
	if !allowed {
		t.Fatal("HALF_OPEN должен разрешать сделку")
	}
	if reason != ReasonHalfOpenProbe {
		t.Errorf("ожидали оговорку '%s', получили '%s'", ReasonHalfOpenProbe, reason)
	}

	// Убыток в испытательном режиме снова открывает breaker
	mustRegister(t, m, "BTCUSDT")
	_ = m.ClosePosition("BTCUSDT", 99, -10)
	if m.Snapshot().BreakerState != BreakerOpen {
		t.Error("убыток в HALF_OPEN должен открыть breaker")
	}
}

func TestManager_HalfOpenWinClosesBreaker(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	m.state.BreakerState = BreakerHalfOpen

	mustRegister(t, m, "BTCUSDT")
	_ = m.ClosePosition("BTCUSDT", 105, 50)

	if m.Snapshot().BreakerState != BreakerClosed {
		t.Error("выигрыш в HALF_OPEN должен закрыть breaker")
	}
}

// ============ Границы дня ============

func TestManager_DayRolloverResetsCountersAndHalfOpensBreaker(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	m.state.BreakerState = BreakerOpen
	m.state.DailyPnl = -400
	m.state.DailyTrades = 5

	// Следующий календарный день
	setClock(m, time.Date(2025, 6, 11, 0, 5, 0, 0, time.UTC))
	_, _ = m.CanOpenTrade("BTCUSDT", 100, 1, 1)

	snap := m.Snapshot()
	if snap.BreakerState != BreakerHalfOpen {
		t.Errorf("новый день должен перевести OPEN в HALF_OPEN, получили %s", snap.BreakerState)
	}
	if snap.DailyPnl != 0 || snap.DailyTrades != 0 {
		t.Error("дневные счётчики должны обнулиться на границе дня")
	}
	if snap.DayStartCapital != snap.Capital {
		t.Error("капитал на начало дня должен обновиться")
	}
}

// ============ Реестр позиций и капитал ============

func TestManager_RegisterCloseRoundTrip(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	before := m.Capital()

	mustRegister(t, m, "BTCUSDT")
	if len(m.Snapshot().OpenPositions) != 1 {
		t.Fatal("позиция должна быть в реестре")
	}

	if err := m.ClosePosition("BTCUSDT", 105, 123.45); err != nil {
		t.Fatal(err)
	}

	snap := m.Snapshot()
	if len(snap.OpenPositions) != 0 {
		t.Error("реестр должен быть пуст после закрытия")
	}
	if math.Abs(snap.Capital-(before+123.45)) > 1e-9 {
		t.Errorf("PnL должен примениться к капиталу ровно один раз: %f -> %f", before, snap.Capital)
	}
}

func TestManager_DoubleRegisterAndCloseErrors(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	mustRegister(t, m, "BTCUSDT")

	if err := m.RegisterPosition("BTCUSDT", models.DirectionShort, 100, 500, 80); err == nil {
		t.Error("повторная регистрация символа должна вернуть ошибку")
	}
	if err := m.ClosePosition("NOPEUSDT", 100, 0); err == nil {
		t.Error("закрытие несуществующей позиции должно вернуть ошибку")
	}
}

func TestManager_PeakCapitalMonotonic(t *testing.T) {
	cfg := testConfig(t)
	cfg.DailyLossLimit = 0.90
	cfg.MaxDrawdown = 0.90
	cfg.MaxConsecutiveLosses = 100
	m := newTestManager(t, cfg)

	pnls := []float64{500, -300, 800, -100, -200, 1000}
	peak := m.Snapshot().PeakCapital
	for i, pnl := range pnls {
		symbol := "SYM" + string(rune('A'+i)) + "USDT"
		mustRegister(t, m, symbol)
		_ = m.ClosePosition(symbol, 100, pnl)

		snap := m.Snapshot()
		if snap.PeakCapital < peak {
			t.Fatalf("пик капитала не должен снижаться: %f -> %f", peak, snap.PeakCapital)
		}
		peak = snap.PeakCapital
		if snap.Drawdown() < 0 {
			t.Fatalf("просадка не может быть отрицательной: %f", snap.Drawdown())
		}
	}
}

// ============ Adjusted fraction ============

func TestManager_GetAdjustedPositionFraction(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		losses   int
		base     float64
		expected float64
	}{
		{"NORMAL без убытков", LevelNormal, 0, 0.02, 0.02},
		{"ELEVATED половинит", LevelElevated, 0, 0.02, 0.01},
		{"HIGH четвертует", LevelHigh, 0, 0.02, 0.005},
		{"CRITICAL обнуляет", LevelCritical, 0, 0.02, 0},
		{"EMERGENCY обнуляет", LevelEmergency, 0, 0.02, 0},
		{"один убыток: штраф 0.85", LevelNormal, 1, 0.02, 0.017},
		{"два убытка: штраф 0.70", LevelNormal, 2, 0.02, 0.014},
		{"пять убытков: пол 0.30", LevelNormal, 5, 0.02, 0.006},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, testConfig(t))
			m.state.RiskLevel = tt.level
			m.state.ConsecutiveLosses = tt.losses

			got := m.GetAdjustedPositionFraction(tt.base)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ожидали %f, получили %f", tt.expected, got)
			}
		})
	}
}

func TestManager_AdjustedFractionClampedToMax(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	got := m.GetAdjustedPositionFraction(0.50)
	if got != m.cfg.MaxPositionFraction {
		t.Errorf("доля должна обрезаться до максимума %f, получили %f", m.cfg.MaxPositionFraction, got)
	}
}

// ============ Персистентность ============

func TestManager_StateSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	mustRegister(t, m, "BTCUSDT")
	mustRegister(t, m, "ETHUSDT")
	_ = m.ClosePosition("ETHUSDT", 105, 250)

	// "Рестарт": новый менеджер с тем же файлом состояния
	m2 := NewManager(cfg, zap.NewNop())

	snap := m2.Snapshot()
	if math.Abs(snap.Capital-10250) > 1e-9 {
		t.Errorf("Capital после рестарта: ожидали 10250, получили %f", snap.Capital)
	}
	if len(snap.OpenPositions) != 1 {
		t.Fatalf("после рестарта должна остаться одна позиция, получили %d", len(snap.OpenPositions))
	}
	if _, ok := snap.OpenPositions["BTCUSDT"]; !ok {
		t.Error("BTCUSDT должен остаться в реестре после рестарта")
	}
}

func TestManager_CorruptStateFileFallsBack(t *testing.T) {
	cfg := testConfig(t)
	store := newStateStore(cfg.StatePath)
	if err := os.WriteFile(cfg.StatePath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil {
		t.Fatal("повреждённый файл должен давать ошибку загрузки")
	}

	// Менеджер при этом стартует, а не падает
	m := NewManager(cfg, zap.NewNop())
	if m.Capital() != cfg.InitialCapital {
		t.Errorf("должен использоваться начальный капитал %f, получили %f", cfg.InitialCapital, m.Capital())
	}
}

// ============ Ручные операции ============

func TestManager_ResetBreaker(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	m.state.BreakerState = BreakerOpen
	m.state.ConsecutiveLosses = 4
	until := m.now().Add(time.Hour)
	m.state.CooldownUntil = &until

	m.ResetBreaker()

	snap := m.Snapshot()
	if snap.BreakerState != BreakerClosed {
		t.Error("ручной сброс должен закрыть breaker")
	}
	if snap.ConsecutiveLosses != 0 || snap.CooldownUntil != nil {
		t.Error("ручной сброс должен снять кулдаун и серию убытков")
	}
}

func TestManager_SetEmergency(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	m.SetEmergency("operator panic close")

	snap := m.Snapshot()
	if snap.RiskLevel != LevelEmergency {
		t.Error("уровень риска должен стать EMERGENCY")
	}
	if snap.BreakerState != BreakerOpen {
		t.Error("breaker должен открыться в аварийном режиме")
	}
	if m.GetAdjustedPositionFraction(0.02) != 0 {
		t.Error("в EMERGENCY adjusted fraction должен быть 0")
	}
}
