package bot

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"sniper/internal/exchange"
	"sniper/internal/models"
	"sniper/internal/risk"
	"sniper/internal/scoring"
	"sniper/internal/sizing"
)

// ============ Фейковый хаб ============

type fakeHub struct {
	mu     sync.Mutex
	events []models.DecisionEvent
}

func (h *fakeHub) BroadcastDecision(ev *models.DecisionEvent) {
	h.mu.Lock()
	h.events = append(h.events, *ev)
	h.mu.Unlock()
}

func (h *fakeHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// ============ Хелперы ============

func newTestEngine(t *testing.T, fake *fakeExchange, mutate func(*risk.Config)) (*Engine, *risk.Manager, *risk.PerformanceTracker, *fakeHub) {
	t.Helper()
	riskMgr := newTestRiskManager(t, mutate)
	sizer := sizing.NewSizer(sizing.DefaultConfig(), zap.NewNop())
	tracker := risk.NewPerformanceTracker(nil, zap.NewNop())
	executor := NewExecutor(fake, riskMgr, sizer, tracker, DefaultExecutorConfig(), zap.NewNop())
	executor.sleep = func(time.Duration) {}

	hub := &fakeHub{}
	cfg := DefaultEngineConfig()
	cfg.Symbols = nil
	eng := NewEngine(cfg, fake, nil, scoring.NewScorer(scoring.DefaultConfig()),
		executor, riskMgr, tracker, hub, zap.NewNop())
	return eng, riskMgr, tracker, hub
}

// bullishScoringSnapshot - снапшот с бычьим конфлюэнсом выше порога
// режима RANGING_WIDE: перепроданный RSI у поддержки, разворот MACD,
// рост OI при положительном старшем таймфрейме
func bullishScoringSnapshot() *scoring.Snapshot {
	return &scoring.Snapshot{
		Symbol:          "BTCUSDT",
		Price:           100,
		Bars:            60,
		EMAFast:         99,
		EMASlow:         98,
		EMATrend:        97,
		RSI:             28,
		PrevRSI:         25,
		MACDHist:        0.5,
		PrevMACDHist:    0.2,
		BBUpper:         105.5,
		BBMiddle:        103,
		BBLower:         100.5,
		ADX:             22,
		PlusDI:          25,
		MinusDI:         15,
		ATR:             1.0,
		VolatilityRatio: 1.0,
		VolumeRatio:     1.5,
		Support:         99.3,
		OIDelta:         1.0,
		HigherTFBias:    10,
		Timestamp:       time.Now(),
	}
}

// ============ Decide Tests ============

func TestEngine_DecideExecutesAndBroadcasts(t *testing.T) {
	fake := defaultFake()
	// Стоп скорера уже дистанции лимитных сигналов - поднимаем лимит доли
	eng, riskMgr, _, hub := newTestEngine(t, fake, func(cfg *risk.Config) {
		cfg.MaxPositionFraction = 1.0
	})

	eng.decide(context.Background(), "BTCUSDT", bullishScoringSnapshot())

	recent := eng.RecentDecisions()
	if len(recent) != 1 {
		t.Fatalf("ожидали 1 событие решения, получили %d", len(recent))
	}
	ev := recent[0]
	if !ev.Executed {
		t.Fatalf("ожидали исполнение, получили отказ: %s", ev.RejectionReason)
	}
	if ev.Direction != models.DirectionLong {
		t.Errorf("Direction: ожидали LONG, получили %s", ev.Direction)
	}
	if hub.count() != 1 {
		t.Errorf("ожидали 1 рассылку хабом, получили %d", hub.count())
	}
	if _, open := riskMgr.Snapshot().OpenPositions["BTCUSDT"]; !open {
		t.Error("позиция не зарегистрирована после исполнения")
	}
}

func TestEngine_DecideRecordsRejection(t *testing.T) {
	fake := defaultFake()
	// Дефолтный лимит 30% капитала меньше нотионала сигнала - отказ
	eng, _, _, hub := newTestEngine(t, fake, nil)

	eng.decide(context.Background(), "BTCUSDT", bullishScoringSnapshot())

	recent := eng.RecentDecisions()
	if len(recent) != 1 {
		t.Fatalf("ожидали 1 событие решения, получили %d", len(recent))
	}
	if recent[0].Executed {
		t.Error("ожидали отказ RiskManager")
	}
	if recent[0].RejectionReason == "" {
		t.Error("событие отказа без причины")
	}
	if hub.count() != 1 {
		t.Errorf("отказ тоже рассылается: ожидали 1 событие, получили %d", hub.count())
	}
}

func TestEngine_DecideSkipsWithoutSignal(t *testing.T) {
	fake := defaultFake()
	eng, _, _, hub := newTestEngine(t, fake, nil)

	snap := bullishScoringSnapshot()
	snap.Bars = 10 // мало истории для скоринга

	eng.decide(context.Background(), "BTCUSDT", snap)

	if n := len(eng.RecentDecisions()); n != 0 {
		t.Errorf("без сигнала событий быть не должно, получили %d", n)
	}
	if hub.count() != 0 {
		t.Errorf("без сигнала рассылок быть не должно, получили %d", hub.count())
	}
}

// ============ Ring Tests ============

func TestEngine_RecentDecisionsRingCapped(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, defaultFake(), nil)

	for i := 0; i < recentDecisionsCap+50; i++ {
		eng.recordDecision(models.DecisionEvent{Symbol: fmt.Sprintf("S%d", i)})
	}

	recent := eng.RecentDecisions()
	if len(recent) != recentDecisionsCap {
		t.Fatalf("ожидали %d событий, получили %d", recentDecisionsCap, len(recent))
	}
	if recent[0].Symbol != "S50" {
		t.Errorf("первое событие: ожидали S50, получили %s", recent[0].Symbol)
	}
	if recent[len(recent)-1].Symbol != "S149" {
		t.Errorf("последнее событие: ожидали S149, получили %s", recent[len(recent)-1].Symbol)
	}
}

func TestEngine_RecentDecisionsReturnsCopy(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, defaultFake(), nil)
	eng.recordDecision(models.DecisionEvent{Symbol: "BTCUSDT"})

	recent := eng.RecentDecisions()
	recent[0].Symbol = "mutated"

	if eng.RecentDecisions()[0].Symbol != "BTCUSDT" {
		t.Error("RecentDecisions должен возвращать копию")
	}
}

// ============ Reconciliation Tests ============

func TestEngine_ReconcileSettlesClosedLong(t *testing.T) {
	fake := defaultFake()
	fake.positions = nil // биржа закрыла позицию стопом или тейком
	fake.ticker.LastPrice = 104

	eng, riskMgr, tracker, _ := newTestEngine(t, fake, nil)
	if err := riskMgr.RegisterPosition("BTCUSDT", models.DirectionLong, 100, 2500, 80); err != nil {
		t.Fatalf("RegisterPosition: %v", err)
	}

	eng.reconcilePositions(context.Background())

	state := riskMgr.Snapshot()
	if n := len(state.OpenPositions); n != 0 {
		t.Fatalf("позиция должна быть снята с учёта, осталось %d", n)
	}
	// 2500 * (104/100 - 1) = +100
	if math.Abs(state.Capital-10100) > 1e-9 {
		t.Errorf("Capital: ожидали 10100, получили %f", state.Capital)
	}

	stats := tracker.Stats()
	if stats.TotalTrades != 1 {
		t.Fatalf("ожидали 1 сделку в статистике, получили %d", stats.TotalTrades)
	}
	if math.Abs(stats.TotalPnl-100) > 1e-9 {
		t.Errorf("TotalPnl: ожидали 100, получили %f", stats.TotalPnl)
	}
}

func TestEngine_ReconcileSettlesClosedShortLoss(t *testing.T) {
	fake := defaultFake()
	fake.positions = nil
	fake.ticker.LastPrice = 104 // цена выросла против шорта

	eng, riskMgr, tracker, _ := newTestEngine(t, fake, nil)
	if err := riskMgr.RegisterPosition("BTCUSDT", models.DirectionShort, 100, 2500, 75); err != nil {
		t.Fatalf("RegisterPosition: %v", err)
	}

	eng.reconcilePositions(context.Background())

	state := riskMgr.Snapshot()
	if math.Abs(state.Capital-9900) > 1e-9 {
		t.Errorf("Capital: ожидали 9900, получили %f", state.Capital)
	}
	if stats := tracker.Stats(); math.Abs(stats.TotalPnl+100) > 1e-9 {
		t.Errorf("TotalPnl: ожидали -100, получили %f", stats.TotalPnl)
	}
}

func TestEngine_ReconcileKeepsLivePositions(t *testing.T) {
	fake := defaultFake() // позиция BTCUSDT всё ещё открыта на бирже

	eng, riskMgr, tracker, _ := newTestEngine(t, fake, nil)
	if err := riskMgr.RegisterPosition("BTCUSDT", models.DirectionLong, 100, 2500, 80); err != nil {
		t.Fatalf("RegisterPosition: %v", err)
	}

	eng.reconcilePositions(context.Background())

	if _, open := riskMgr.Snapshot().OpenPositions["BTCUSDT"]; !open {
		t.Error("живая позиция не должна сниматься с учёта")
	}
	if n := tracker.Stats().TotalTrades; n != 0 {
		t.Errorf("живая позиция не должна попадать в статистику, получили %d сделок", n)
	}
}

func TestEngine_ReconcileSkipsOnExchangeError(t *testing.T) {
	fake := defaultFake()
	fake.positionsErr = fmt.Errorf("positions unavailable")

	eng, riskMgr, _, _ := newTestEngine(t, fake, nil)
	if err := riskMgr.RegisterPosition("BTCUSDT", models.DirectionLong, 100, 2500, 80); err != nil {
		t.Fatalf("RegisterPosition: %v", err)
	}

	eng.reconcilePositions(context.Background())

	if _, open := riskMgr.Snapshot().OpenPositions["BTCUSDT"]; !open {
		t.Error("при недоступной бирже реестр не трогаем")
	}
}

// ============ Run Tests ============

func TestEngine_RunStopsOnContextCancel(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, defaultFake(), nil)
	eng.cfg.ScanInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("ожидали context.Canceled, получили %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

// ============ Position Stream Tests ============

func TestEngine_PositionStreamTriggersImmediateSettlement(t *testing.T) {
	fake := defaultFake()
	fake.ticker.LastPrice = 104

	eng, riskMgr, tracker, _ := newTestEngine(t, fake, nil)
	// Плановую сверку выключаем: закрытие должно прийти из потока позиций
	eng.cfg.ReconcileEvery = 0
	eng.cfg.ScanInterval = time.Hour

	if err := riskMgr.RegisterPosition("BTCUSDT", models.DirectionLong, 100, 2500, 80); err != nil {
		t.Fatalf("RegisterPosition: %v", err)
	}
	fake.setPositions(nil) // на бирже позиция уже схлопнулась

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		// Подписка оформляется внутри Run, поэтому шлём событие до упора
		fake.pushPosition(&exchange.Position{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0})

		state := riskMgr.Snapshot()
		if len(state.OpenPositions) == 0 {
			// 2500 * (104/100 - 1) = +100
			if math.Abs(state.Capital-10100) > 1e-9 {
				t.Errorf("Capital: ожидали 10100, получили %f", state.Capital)
			}
			if stats := tracker.Stats(); stats.TotalTrades != 1 {
				t.Errorf("ожидали 1 сделку в статистике, получили %d", stats.TotalTrades)
			}
			return
		}

		select {
		case <-deadline:
			t.Fatal("событие потока позиций не привело к немедленной сверке")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_PositionStreamIgnoresOpenUpdates(t *testing.T) {
	fake := defaultFake()
	eng, _, _, _ := newTestEngine(t, fake, nil)
	eng.subscribePositionStream()

	// Обновление открытой позиции (mark-to-market) сверку не дёргает
	fake.pushPosition(&exchange.Position{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0.5})

	select {
	case <-eng.reconcileKick:
		t.Fatal("обновление живой позиции не должно запускать сверку")
	default:
	}

	// Ликвидация дёргает даже при ненулевом размере
	fake.pushPosition(&exchange.Position{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0.5, Liquidation: true})

	select {
	case <-eng.reconcileKick:
	default:
		t.Fatal("ликвидация должна запускать немедленную сверку")
	}
}

// ============ PanicCloseAll Tests ============

func TestEngine_PanicCloseAllClosesWithPositionSide(t *testing.T) {
	fake := defaultFake()
	fake.positions = []*exchange.Position{
		{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0.5, EntryPrice: 100, MarkPrice: 104},
		{Symbol: "ETHUSDT", Side: exchange.SideShort, Size: 2, EntryPrice: 50, MarkPrice: 49},
	}
	eng, riskMgr, _, _ := newTestEngine(t, fake, nil)

	closed, err := eng.PanicCloseAll(context.Background(), "operator drill")
	if err != nil {
		t.Fatalf("PanicCloseAll: %v", err)
	}
	if closed != 2 {
		t.Fatalf("ожидали 2 закрытые позиции, получили %d", closed)
	}

	// Клиент биржи сам строит противоположный reduce-only ордер,
	// поэтому сюда должна дойти сторона самой позиции
	want := []closeCall{
		{symbol: "BTCUSDT", side: exchange.SideLong, qty: 0.5},
		{symbol: "ETHUSDT", side: exchange.SideShort, qty: 2},
	}
	if len(fake.closes) != len(want) {
		t.Fatalf("ожидали %d вызовов ClosePosition, получили %d", len(want), len(fake.closes))
	}
	for i, w := range want {
		if fake.closes[i] != w {
			t.Errorf("closes[%d] = %+v, ожидали %+v", i, fake.closes[i], w)
		}
	}

	if lvl := riskMgr.Snapshot().RiskLevel; lvl != risk.LevelEmergency {
		t.Errorf("RiskLevel: ожидали %s, получили %s", risk.LevelEmergency, lvl)
	}
}

func TestEngine_PanicCloseAllSettlesNegativePnl(t *testing.T) {
	fake := defaultFake()
	// Лонг ушёл в минус: закрытие по 95 при входе 100
	fake.positions = []*exchange.Position{
		{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 25, EntryPrice: 100, MarkPrice: 95},
	}
	eng, riskMgr, _, _ := newTestEngine(t, fake, nil)
	if err := riskMgr.RegisterPosition("BTCUSDT", models.DirectionLong, 100, 2500, 80); err != nil {
		t.Fatalf("RegisterPosition: %v", err)
	}

	closed, err := eng.PanicCloseAll(context.Background(), "drawdown guard")
	if err != nil {
		t.Fatalf("PanicCloseAll: %v", err)
	}
	if closed != 1 {
		t.Fatalf("ожидали 1 закрытую позицию, получили %d", closed)
	}

	snap := riskMgr.Snapshot()
	if _, open := snap.OpenPositions["BTCUSDT"]; open {
		t.Error("позиция должна быть снята с учёта")
	}
	if math.Abs(snap.Capital-9875) > 1e-9 {
		t.Errorf("Capital: ожидали 9875 после убытка 125, получили %.2f", snap.Capital)
	}
}
