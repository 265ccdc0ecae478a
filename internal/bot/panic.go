package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sniper/internal/exchange"
	"sniper/internal/models"
	"sniper/pkg/retry"
)

// panic.go - экстренное закрытие всех позиций
//
// Операторская команда: закрыть все позиции рыночными reduce-only
// ордерами, снять все отложенные ордера и перевести RiskManager в
// EMERGENCY. Из EMERGENCY выход только ручным сбросом breaker.

// PanicCloseAll экстренно закрывает все открытые позиции.
// Возвращает количество закрытых позиций и первую ошибку; закрытие
// остальных позиций продолжается несмотря на ошибки отдельных символов.
func (e *Engine) PanicCloseAll(ctx context.Context, reason string) (int, error) {
	e.logger.Warn("PANIC CLOSE initiated", zap.String("reason", reason))

	// Сначала блокируем новые сделки
	e.riskMgr.SetEmergency(reason)

	if err := e.exchange.CancelAllOrders(ctx, ""); err != nil {
		e.logger.Error("Failed to cancel open orders", zap.Error(err))
	}

	positions, err := e.exchange.GetOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("get open positions: %w", err)
	}

	var closed int
	var firstErr error
	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}

		// ClosePosition принимает сторону ПОЗИЦИИ и сам размещает
		// противоположный reduce-only ордер
		p := pos
		err := retry.Do(ctx, func() error {
			return e.exchange.ClosePosition(ctx, p.Symbol, p.Side, p.Size)
		}, retry.AggressiveConfig())
		if err != nil {
			e.logger.Error("Failed to panic close position",
				zap.String("symbol", pos.Symbol),
				zap.Float64("size", pos.Size),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", pos.Symbol, err)
			}
			continue
		}

		closed++
		e.logger.Warn("Position closed",
			zap.String("symbol", pos.Symbol),
			zap.String("side", pos.Side),
			zap.Float64("size", pos.Size))

		// Снимаем с учёта по текущей цене
		exitPrice := pos.MarkPrice
		if exitPrice == 0 {
			exitPrice = pos.EntryPrice
		}
		trackedSide := models.DirectionLong
		if pos.Side == exchange.SideShort {
			trackedSide = models.DirectionShort
		}
		direction := 1.0
		if trackedSide == models.DirectionShort {
			direction = -1.0
		}
		notional := pos.Size * pos.EntryPrice
		pnl := notional * (exitPrice/pos.EntryPrice - 1) * direction
		if err := e.riskMgr.ClosePosition(pos.Symbol, exitPrice, pnl); err == nil {
			PnlTotal.Add(pnl)
		}
	}

	e.publishRiskGauges()
	e.logger.Warn("PANIC CLOSE finished",
		zap.Int("closed", closed),
		zap.Int("total", len(positions)))
	return closed, firstErr
}
