package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sniper/internal/exchange"
	"sniper/internal/market"
	"sniper/internal/models"
	"sniper/internal/risk"
	"sniper/internal/scoring"
)

// engine.go - главный цикл сканирования
//
// Архитектура цикла:
// 1. Снапшоты индикаторов собираются ПАРАЛЛЕЛЬНО по всем символам
//    (сетевые запросы независимы)
// 2. Решения принимаются ПОСЛЕДОВАТЕЛЬНО в стабильном порядке символов:
//    RiskManager и сайзинг видят согласованное состояние, порядок
//    детерминирован
// 3. Между символами цикл прерываем через context; начатое размещение
//    ордера довершается при остановке
//
// Ошибка одного символа никогда не роняет цикл: символ пропускается
// до следующего тика.

const recentDecisionsCap = 100

// Config - параметры движка
type Config struct {
	Symbols        []string      // вселенная символов в порядке обхода
	ScanInterval   time.Duration // период цикла сканирования
	ReconcileEvery int           // каждые N циклов сверять позиции с биржей
}

// DefaultEngineConfig возвращает параметры по умолчанию
func DefaultEngineConfig() Config {
	return Config{
		Symbols:        []string{"BTCUSDT", "ETHUSDT"},
		ScanInterval:   time.Minute,
		ReconcileEvery: 1,
	}
}

// EventBroadcaster - интерфейс публикации событий решений.
// Реализуется пакетом internal/websocket (Hub).
type EventBroadcaster interface {
	BroadcastDecision(ev *models.DecisionEvent)
}

// Engine - движок принятия торговых решений
type Engine struct {
	cfg      Config
	exchange exchange.Exchange
	builder  *market.Builder
	scorer   *scoring.Scorer
	executor *Executor
	riskMgr  *risk.Manager
	tracker  *risk.PerformanceTracker
	hub      EventBroadcaster
	logger   *zap.Logger

	// кольцо последних решений для API
	recentMu sync.RWMutex
	recent   []models.DecisionEvent

	// сигнал от приватного потока позиций: на бирже что-то
	// схлопнулось, сверку надо делать сейчас, а не на следующем тике
	reconcileKick chan struct{}

	cycles int
}

// NewEngine создает движок
func NewEngine(cfg Config, ex exchange.Exchange, builder *market.Builder, scorer *scoring.Scorer,
	executor *Executor, riskMgr *risk.Manager, tracker *risk.PerformanceTracker,
	hub EventBroadcaster, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		exchange: ex,
		builder:  builder,
		scorer:   scorer,
		executor: executor,
		riskMgr:  riskMgr,
		tracker:  tracker,
		hub:      hub,
		logger:   logger.With(zap.String("component", "engine")),

		reconcileKick: make(chan struct{}, 1),
	}
}

// Run запускает цикл сканирования до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine started",
		zap.Strings("symbols", e.cfg.Symbols),
		zap.Duration("scan_interval", e.cfg.ScanInterval))

	e.subscribePositionStream()

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	// Первый цикл сразу, не дожидаясь тика
	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-e.reconcileKick:
			e.reconcilePositions(ctx)
			e.publishRiskGauges()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// subscribePositionStream подписывается на приватный поток позиций.
// Закрытие или ликвидация на стороне биржи даёт немедленную сверку
// вместо ожидания планового reconcilePositions. Ошибка подписки не
// фатальна: плановая сверка по счётчику циклов остаётся запасным путём.
func (e *Engine) subscribePositionStream() {
	err := e.exchange.SubscribePositions(func(p *exchange.Position) {
		if p.Size != 0 && !p.Liquidation {
			return
		}
		select {
		case e.reconcileKick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		e.logger.Warn("Position stream unavailable, falling back to polling",
			zap.Error(err))
	}
}

// runCycle выполняет один полный цикл сканирования
func (e *Engine) runCycle(ctx context.Context) {
	start := time.Now()

	snapshots := e.buildSnapshots(ctx)

	// Решения строго последовательно в порядке конфигурации
	for _, symbol := range e.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		snap, ok := snapshots[symbol]
		if !ok {
			continue
		}
		e.decide(ctx, symbol, snap)
	}

	e.cycles++
	if e.cfg.ReconcileEvery > 0 && e.cycles%e.cfg.ReconcileEvery == 0 {
		e.reconcilePositions(ctx)
	}

	e.publishRiskGauges()
	ScanCycleDuration.Observe(time.Since(start).Seconds())
}

// buildSnapshots собирает снапшоты индикаторов параллельно по символам
func (e *Engine) buildSnapshots(ctx context.Context) map[string]*scoring.Snapshot {
	var mu sync.Mutex
	snapshots := make(map[string]*scoring.Snapshot, len(e.cfg.Symbols))

	var wg sync.WaitGroup
	for _, symbol := range e.cfg.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()

			snap, err := e.builder.Build(ctx, sym)
			if err != nil {
				SnapshotBuildErrors.WithLabelValues(sym).Inc()
				e.logger.Warn("Snapshot build failed",
					zap.String("symbol", sym), zap.Error(err))
				return
			}

			mu.Lock()
			snapshots[sym] = snap
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return snapshots
}

// decide скорит снапшот и при наличии сигнала передает его исполнителю
func (e *Engine) decide(ctx context.Context, symbol string, snap *scoring.Snapshot) {
	sig, ok := e.scorer.Score(snap)
	if !ok {
		RecordDecision(models.DecisionNoSignal, "")
		return
	}

	ConfluenceObserved.WithLabelValues(symbol).Observe(sig.Percentage)
	RecordSignal(symbol, sig.Direction, sig.Regime)
	e.logger.Info("Signal generated",
		zap.String("symbol", symbol),
		zap.String("direction", sig.Direction),
		zap.String("regime", sig.Regime),
		zap.Int("score", sig.Score),
		zap.Float64("percentage", sig.Percentage),
		zap.String("strength", sig.Strength))

	ev := e.executor.Execute(ctx, sig, snap)
	e.recordDecision(ev)
}

// recordDecision сохраняет событие в кольце и рассылает подписчикам
func (e *Engine) recordDecision(ev models.DecisionEvent) {
	e.recentMu.Lock()
	e.recent = append(e.recent, ev)
	if len(e.recent) > recentDecisionsCap {
		e.recent = e.recent[len(e.recent)-recentDecisionsCap:]
	}
	e.recentMu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastDecision(&ev)
	}
}

// RecentDecisions возвращает последние события решений (новые в конце)
func (e *Engine) RecentDecisions() []models.DecisionEvent {
	e.recentMu.RLock()
	defer e.recentMu.RUnlock()

	out := make([]models.DecisionEvent, len(e.recent))
	copy(out, e.recent)
	return out
}

// reconcilePositions сверяет реестр RiskManager с биржей: позиции,
// закрытые биржевым SL/TP, фиксируются в статистике и снимаются с учёта.
func (e *Engine) reconcilePositions(ctx context.Context) {
	tracked := e.riskMgr.OpenPositionsList()
	if len(tracked) == 0 {
		return
	}

	live, err := e.exchange.GetOpenPositions(ctx)
	if err != nil {
		e.logger.Warn("Position reconciliation skipped", zap.Error(err))
		return
	}

	liveSymbols := make(map[string]bool, len(live))
	for _, p := range live {
		liveSymbols[p.Symbol] = true
	}

	for _, pos := range tracked {
		if liveSymbols[pos.Symbol] {
			continue
		}

		// Позиции нет на бирже - закрыта стопом или тейком
		exitPrice := pos.EntryPrice
		if ticker, terr := e.exchange.GetTicker(ctx, pos.Symbol); terr == nil {
			exitPrice = ticker.LastPrice
		}

		direction := 1.0
		if pos.Side == models.DirectionShort {
			direction = -1.0
		}
		pnl := pos.Notional * (exitPrice/pos.EntryPrice - 1) * direction

		e.logger.Info("Position closed on exchange, settling",
			zap.String("symbol", pos.Symbol),
			zap.String("side", pos.Side),
			zap.Float64("entry", pos.EntryPrice),
			zap.Float64("exit", exitPrice),
			zap.Float64("pnl", pnl))

		if err := e.riskMgr.ClosePosition(pos.Symbol, exitPrice, pnl); err != nil {
			e.logger.Error("Failed to settle position",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		PnlTotal.Add(pnl)

		e.tracker.Record(ctx, models.TradeRecord{
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  exitPrice,
			Notional:   pos.Notional,
			Pnl:        pnl,
			Score:      pos.Score,
			OpenedAt:   pos.OpenedAt,
			ClosedAt:   time.Now(),
		})
	}
}

// publishRiskGauges обновляет метрики состояния риска
func (e *Engine) publishRiskGauges() {
	state := e.riskMgr.Snapshot()
	UpdateRiskGauges(state.BreakerState, state.Capital, state.DailyPnl, len(state.OpenPositions))
}
