package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sniper/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades.
// Реализует risk.TradeStore: история сделок переживает рестарт процесса
// и подкармливает Kelly-статистику при старте.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// EnsureSchema создает таблицу trades, если её ещё нет
func (r *TradeRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS trades (
			id          SERIAL PRIMARY KEY,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price  DOUBLE PRECISION NOT NULL,
			notional    DOUBLE PRECISION NOT NULL,
			pnl         DOUBLE PRECISION NOT NULL,
			score       INTEGER NOT NULL,
			regime      TEXT NOT NULL DEFAULT '',
			opened_at   TIMESTAMPTZ NOT NULL,
			closed_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades (closed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades (symbol)`

	_, err := r.db.ExecContext(ctx, query)
	return err
}

// SaveTrade записывает закрытую сделку
func (r *TradeRepository) SaveTrade(ctx context.Context, trade *models.TradeRecord) error {
	query := `
		INSERT INTO trades (symbol, side, entry_price, exit_price, notional, pnl, score, regime, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	if trade.ClosedAt.IsZero() {
		trade.ClosedAt = time.Now()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		trade.Symbol,
		trade.Side,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Notional,
		trade.Pnl,
		trade.Score,
		trade.Regime,
		trade.OpenedAt,
		trade.ClosedAt,
	).Scan(&trade.ID)

	if err != nil {
		return err
	}

	return nil
}

// RecentTrades возвращает последние limit сделок от старых к новым
// (порядок, в котором трекер пересчитывает серии побед/поражений)
func (r *TradeRepository) RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	query := `
		SELECT id, symbol, side, entry_price, exit_price, notional, pnl, score, regime, opened_at, closed_at
		FROM (
			SELECT id, symbol, side, entry_price, exit_price, notional, pnl, score, regime, opened_at, closed_at
			FROM trades
			ORDER BY closed_at DESC
			LIMIT $1
		) recent
		ORDER BY closed_at ASC`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// TradesBySymbol возвращает последние сделки по символу от новых к старым
func (r *TradeRepository) TradesBySymbol(ctx context.Context, symbol string, limit int) ([]models.TradeRecord, error) {
	query := `
		SELECT id, symbol, side, entry_price, exit_price, notional, pnl, score, regime, opened_at, closed_at
		FROM trades
		WHERE symbol = $1
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(ctx context.Context, id int) (*models.TradeRecord, error) {
	query := `
		SELECT id, symbol, side, entry_price, exit_price, notional, pnl, score, regime, opened_at, closed_at
		FROM trades
		WHERE id = $1`

	trade := &models.TradeRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&trade.ID,
		&trade.Symbol,
		&trade.Side,
		&trade.EntryPrice,
		&trade.ExitPrice,
		&trade.Notional,
		&trade.Pnl,
		&trade.Score,
		&trade.Regime,
		&trade.OpenedAt,
		&trade.ClosedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return trade, nil
}

// PnlSince возвращает суммарный PnL по сделкам, закрытым после момента t
func (r *TradeRepository) PnlSince(ctx context.Context, t time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM trades
		WHERE closed_at >= $1`

	var pnl float64
	if err := r.db.QueryRowContext(ctx, query, t).Scan(&pnl); err != nil {
		return 0, err
	}
	return pnl, nil
}

func scanTrades(rows *sql.Rows) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	for rows.Next() {
		var trade models.TradeRecord
		err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&trade.Side,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Notional,
			&trade.Pnl,
			&trade.Score,
			&trade.Regime,
			&trade.OpenedAt,
			&trade.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
