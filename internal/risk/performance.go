package risk

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sniper/internal/models"
)

// performance.go - учёт результатов сделок для Kelly-сайзинга
//
// Трекер держит историю закрытых сделок в памяти и опционально
// дублирует её в репозиторий (Postgres). Статистика (win rate,
// средние прибыль/убыток) - вход формулы Келли в сайзере.

// TradeStore - персистентное хранилище истории сделок
type TradeStore interface {
	SaveTrade(ctx context.Context, trade *models.TradeRecord) error
	RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error)
}

// PerformanceTracker накапливает историю сделок и считает статистику
type PerformanceTracker struct {
	mu       sync.RWMutex
	trades   []models.TradeRecord
	maxKeep  int // сколько последних сделок держим в памяти
	store    TradeStore
	logger   *zap.Logger
}

// NewPerformanceTracker создает трекер. store может быть nil -
// тогда история живёт только в памяти процесса.
func NewPerformanceTracker(store TradeStore, logger *zap.Logger) *PerformanceTracker {
	t := &PerformanceTracker{
		maxKeep: 500,
		store:   store,
		logger:  logger.With(zap.String("component", "performance_tracker")),
	}

	if store != nil {
		trades, err := store.RecentTrades(context.Background(), t.maxKeep)
		if err != nil {
			t.logger.Warn("Failed to preload trade history", zap.Error(err))
		} else {
			t.trades = trades
			t.logger.Info("Trade history preloaded", zap.Int("trades", len(trades)))
		}
	}
	return t
}

// Record регистрирует закрытую сделку.
// Ошибка записи в хранилище не теряет сделку: в памяти она остаётся.
func (t *PerformanceTracker) Record(ctx context.Context, trade models.TradeRecord) {
	t.mu.Lock()
	t.trades = append(t.trades, trade)
	if len(t.trades) > t.maxKeep {
		t.trades = t.trades[len(t.trades)-t.maxKeep:]
	}
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.SaveTrade(ctx, &trade); err != nil {
			t.logger.Error("Failed to persist trade record",
				zap.String("symbol", trade.Symbol),
				zap.Error(err))
		}
	}
}

// Stats возвращает агрегированную статистику по сделкам в памяти
func (t *PerformanceTracker) Stats() models.PerformanceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := models.PerformanceStats{TotalTrades: len(t.trades)}
	if stats.TotalTrades == 0 {
		return stats
	}

	var grossProfit, grossLoss float64
	var streak, bestStreak, worstStreak int

	for _, trade := range t.trades {
		stats.TotalPnl += trade.Pnl
		if trade.Pnl > 0 {
			stats.Wins++
			grossProfit += trade.Pnl
			if streak < 0 {
				streak = 0
			}
			streak++
			if streak > bestStreak {
				bestStreak = streak
			}
		} else if trade.Pnl < 0 {
			stats.Losses++
			grossLoss += -trade.Pnl
			if streak > 0 {
				streak = 0
			}
			streak--
			if streak < worstStreak {
				worstStreak = streak
			}
		}
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades)
	if stats.Wins > 0 {
		stats.AvgWin = grossProfit / float64(stats.Wins)
	}
	if stats.Losses > 0 {
		stats.AvgLoss = grossLoss / float64(stats.Losses)
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossProfit / grossLoss
	}
	stats.BestStreak = bestStreak
	stats.WorstStreak = -worstStreak
	return stats
}

// KellyInput возвращает вход для формулы Келли:
// win rate, средняя прибыль, средний убыток (по модулю), число сделок.
func (t *PerformanceTracker) KellyInput() (winRate, avgWin, avgLoss float64, trades int) {
	stats := t.Stats()
	return stats.WinRate, stats.AvgWin, stats.AvgLoss, stats.TotalTrades
}
