package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sniper/internal/exchange"
	"sniper/internal/models"
	"sniper/internal/risk"
	"sniper/internal/scoring"
	"sniper/internal/sizing"
	"sniper/pkg/retry"
	"sniper/pkg/utils"
)

// executor.go - исполнение одобренного сигнала
//
// Последовательность на сигнал: допуск RiskManager -> баланс ->
// доля риска (Келли, волатильность, множитель RiskManager) -> сайзинг ->
// режим маржи и плечо -> оптимизация входа по стакану -> лимитный ордер
// с SL/TP -> проверка, что защита реально встала на позицию.
//
// Любой отказ - событие решения с причиной, не ошибка: движок
// продолжает сканирование, символ получит новый шанс в следующем цикле.

// Причины отказа исполнения
const (
	ReasonBalanceUnavailable = "failed to fetch balance"
	ReasonLimitsUnavailable  = "failed to fetch instrument limits"
	ReasonLeverageSetup      = "failed to set leverage"
	ReasonOrderRejected      = "order rejected by exchange"
	ReasonDryRun             = "dry run: order simulated"
)

// ExecutorConfig - параметры исполнителя
type ExecutorConfig struct {
	OrderTimeout time.Duration // таймаут на размещение ордера
	VerifyDelay  time.Duration // пауза перед проверкой SL/TP на позиции
	Isolated     bool          // изолированная маржа
	DryRun       bool          // не отправлять реальные ордера
}

// DefaultExecutorConfig возвращает параметры по умолчанию
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		OrderTimeout: 10 * time.Second,
		VerifyDelay:  time.Second,
		Isolated:     true,
	}
}

// Executor превращает сигнал в ордер на бирже
type Executor struct {
	exchange exchange.Exchange
	riskMgr  *risk.Manager
	sizer    *sizing.Sizer
	tracker  *risk.PerformanceTracker
	cfg      ExecutorConfig
	logger   *zap.Logger

	// переопределяется в тестах, чтобы не спать
	sleep func(time.Duration)
}

// NewExecutor создает исполнитель сигналов
func NewExecutor(ex exchange.Exchange, riskMgr *risk.Manager, sizer *sizing.Sizer,
	tracker *risk.PerformanceTracker, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		exchange: ex,
		riskMgr:  riskMgr,
		sizer:    sizer,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "executor")),
		sleep:    time.Sleep,
	}
}

// Execute исполняет сигнал и возвращает событие решения.
// Событие создается всегда: и при исполнении, и при отказе.
func (ex *Executor) Execute(ctx context.Context, sig *models.Signal, snap *scoring.Snapshot) models.DecisionEvent {
	ev := models.DecisionEvent{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Score:      sig.Score,
		Percentage: sig.Percentage,
		Entry:      sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Timestamp:  time.Now(),
	}

	// 1. Баланс (transient ошибки сети ретраим)
	balance, err := retry.DoWithResult(ctx, func() (*exchange.Balance, error) {
		return ex.exchange.GetBalance(ctx)
	}, retry.NetworkConfig())
	if err != nil {
		ex.logger.Error("Balance fetch failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return ex.reject(ev, ReasonBalanceUnavailable)
	}
	UpdateExchangeBalance(balance.Equity, balance.Available)

	// 2. Итоговая доля риска: Келли -> волатильность -> RiskManager
	winRate, avgWin, avgLoss, trades := ex.tracker.KellyInput()
	basePct := ex.sizer.KellyRiskPct(sizing.KellyInput{
		WinRate: winRate,
		AvgWin:  avgWin,
		AvgLoss: avgLoss,
		Trades:  trades,
	})
	atrPct := snap.ATRPercent()
	volPct := ex.sizer.VolatilityAdjustedRiskPct(atrPct, basePct)
	finalFraction := ex.riskMgr.GetAdjustedPositionFraction(volPct / 100)

	// 3. Лимиты инструмента и сайзинг
	limits, err := retry.DoWithResult(ctx, func() (*exchange.Limits, error) {
		return ex.exchange.GetLimits(ctx, sig.Symbol)
	}, retry.NetworkConfig())
	if err != nil {
		ex.logger.Error("Limits fetch failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return ex.reject(ev, ReasonLimitsUnavailable)
	}

	sized := ex.sizer.Calculate(sig, sizing.Account{
		Capital:   balance.Equity,
		Available: balance.Available,
	}, atrPct, finalFraction, limits)
	if sized.Rejected {
		return ex.reject(ev, sized.Reason)
	}

	// 4. Допуск RiskManager по рассчитанному нотионалу
	allowed, reason := ex.riskMgr.CanOpenTrade(sig.Symbol, sized.Notional, snap.VolatilityRatio, 1.0)
	if !allowed {
		return ex.reject(ev, reason)
	}
	if reason != "" {
		// HALF_OPEN испытательный режим: торгуем, но причину логируем
		ex.logger.Warn("Trade allowed with caveat",
			zap.String("symbol", sig.Symbol),
			zap.String("caveat", reason))
	}

	ex.logger.Info("Executing signal",
		zap.String("symbol", sig.Symbol),
		zap.String("direction", sig.Direction),
		zap.Int("score", sig.Score),
		zap.Float64("percentage", sig.Percentage),
		zap.Float64("quantity", sized.Quantity),
		zap.Int("leverage", sized.Leverage),
		zap.Float64("margin", sized.Margin))

	if ex.cfg.DryRun {
		ex.logger.Info("[DRY RUN] Order would be placed",
			zap.String("symbol", sig.Symbol),
			zap.Float64("qty", sized.Quantity),
			zap.Float64("entry", sig.EntryPrice),
			zap.Float64("sl", sig.StopLoss),
			zap.Float64("tp", sig.TakeProfit))
		return ex.reject(ev, ReasonDryRun)
	}

	// 5. Режим маржи и плечо до ордера
	if err := ex.exchange.SetMarginMode(ctx, sig.Symbol, ex.cfg.Isolated, sized.Leverage); err != nil {
		ex.logger.Warn("Failed to switch margin mode, continuing",
			zap.String("symbol", sig.Symbol), zap.Error(err))
	}
	if err := ex.exchange.SetLeverage(ctx, sig.Symbol, sized.Leverage); err != nil {
		ex.logger.Error("Failed to set leverage", zap.String("symbol", sig.Symbol), zap.Error(err))
		return ex.reject(ev, ReasonLeverageSetup)
	}

	// 6. Оптимизация входа по стакану и лимитный ордер с защитой.
	// Цены приводим к шагу инструмента - некратные Bybit отклоняет
	entry := utils.RoundToTickSize(ex.optimizeEntry(ctx, sig), limits.PriceStep)
	order, err := ex.placeOrder(ctx, sig, sized, entry, limits.PriceStep)
	if err != nil {
		ex.logger.Error("Order placement failed",
			zap.String("symbol", sig.Symbol), zap.Error(err))
		return ex.reject(ev, fmt.Sprintf("%s: %v", ReasonOrderRejected, err))
	}

	// 7. Регистрация позиции и контроль защиты
	if err := ex.riskMgr.RegisterPosition(sig.Symbol, sig.Direction, entry, sized.Notional, sig.Score); err != nil {
		// Позиция уже открыта на бирже - фиксируем событие, но сообщаем
		ex.logger.Error("Failed to register position",
			zap.String("symbol", sig.Symbol), zap.Error(err))
	}
	ex.verifyProtection(ctx, sig)

	TradesTotal.WithLabelValues(sig.Symbol, sig.Direction).Inc()
	RecordDecision(models.DecisionExecuted, "")

	ev.Executed = true
	ev.Entry = entry
	ev.OrderID = order.ID
	ex.logger.Info("Order placed",
		zap.String("symbol", sig.Symbol),
		zap.String("order_id", order.ID),
		zap.Float64("entry", entry))
	return ev
}

// reject фиксирует отказ в метриках и событии
func (ex *Executor) reject(ev models.DecisionEvent, reason string) models.DecisionEvent {
	RecordDecision(models.DecisionRejected, reason)
	ev.Executed = false
	ev.RejectionReason = reason
	ex.logger.Info("Signal rejected",
		zap.String("symbol", ev.Symbol),
		zap.String("reason", reason))
	return ev
}

// optimizeEntry подбирает цену входа по стакану: входим мейкером на
// пассивной стороне книги, но не хуже цены сигнала. При недоступном
// стакане возвращается цена сигнала.
func (ex *Executor) optimizeEntry(ctx context.Context, sig *models.Signal) float64 {
	book, err := ex.exchange.GetOrderBook(ctx, sig.Symbol, 5)
	if err != nil || book == nil {
		return sig.EntryPrice
	}

	if sig.Direction == models.DirectionLong {
		if len(book.Bids) > 0 && book.Bids[0].Price > 0 {
			optimized := book.Bids[0].Price
			if sig.EntryPrice < optimized {
				optimized = sig.EntryPrice
			}
			ex.logger.Debug("Entry optimized",
				zap.String("symbol", sig.Symbol),
				zap.Float64("signal", sig.EntryPrice),
				zap.Float64("optimized", optimized),
				zap.Float64("best_bid", book.Bids[0].Price))
			return optimized
		}
		return sig.EntryPrice
	}

	if len(book.Asks) > 0 && book.Asks[0].Price > 0 {
		optimized := book.Asks[0].Price
		if sig.EntryPrice > optimized {
			optimized = sig.EntryPrice
		}
		ex.logger.Debug("Entry optimized",
			zap.String("symbol", sig.Symbol),
			zap.Float64("signal", sig.EntryPrice),
			zap.Float64("optimized", optimized),
			zap.Float64("best_ask", book.Asks[0].Price))
		return optimized
	}
	return sig.EntryPrice
}

// placeOrder отправляет лимитный ордер с прикрепленными SL/TP
func (ex *Executor) placeOrder(ctx context.Context, sig *models.Signal, sized models.SizingResult, entry, priceStep float64) (*exchange.Order, error) {
	side := exchange.SideBuy
	if sig.Direction == models.DirectionShort {
		side = exchange.SideSell
	}

	// Начатое размещение довершается и при остановке движка:
	// отмена родительского контекста не должна оборвать ордер
	// на полпути. Ограничиваемся только собственным таймаутом.
	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ex.cfg.OrderTimeout)
	defer cancel()

	start := time.Now()
	order, err := ex.exchange.PlaceOrder(orderCtx, &exchange.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Type:       exchange.OrderTypeLimit,
		Quantity:   sized.Quantity,
		Price:      entry,
		StopLoss:   utils.RoundToTickSize(sig.StopLoss, priceStep),
		TakeProfit: utils.RoundToTickSize(sig.TakeProfit, priceStep),
	})
	OrderExecutionLatency.WithLabelValues(sig.Symbol, side).
		Observe(float64(time.Since(start).Milliseconds()))
	return order, err
}

// verifyProtection проверяет, что SL/TP реально встали на позицию.
// Bybit иногда молча игнорирует защитные параметры при быстром
// исполнении - в этом случае принудительно ставим их повторно.
func (ex *Executor) verifyProtection(ctx context.Context, sig *models.Signal) {
	ex.sleep(ex.cfg.VerifyDelay)

	positions, err := ex.exchange.GetOpenPositions(ctx)
	if err != nil {
		ex.logger.Warn("Protection check skipped: positions unavailable",
			zap.String("symbol", sig.Symbol), zap.Error(err))
		return
	}

	for _, pos := range positions {
		if pos.Symbol != sig.Symbol {
			continue
		}
		if pos.StopLoss != 0 && pos.TakeProfit != 0 {
			return
		}

		ex.logger.Warn("SL/TP missing on position, enforcing",
			zap.String("symbol", sig.Symbol),
			zap.Float64("position_sl", pos.StopLoss),
			zap.Float64("position_tp", pos.TakeProfit))
		StopEnforcements.WithLabelValues(sig.Symbol).Inc()

		// Критичная операция - агрессивный retry
		err := retry.Do(ctx, func() error {
			return ex.exchange.SetTradingStop(ctx, sig.Symbol, sig.StopLoss, sig.TakeProfit)
		}, retry.AggressiveConfig())
		if err != nil {
			ex.logger.Error("Failed to enforce SL/TP",
				zap.String("symbol", sig.Symbol), zap.Error(err))
		}
		return
	}
}
