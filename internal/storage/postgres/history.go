package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pricewatch/internal/storage"
)

type History struct {
	db *sql.DB
}

func New(dsn string) (*History, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	h := &History{db: db}
	if err := h.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating postgres: %w", err)
	}
	return h, nil
}

func (h *History) Close() error { return h.db.Close() }

func (h *History) migrate(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS price_history (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  ts TIMESTAMPTZ NOT NULL,
  open DOUBLE PRECISION NOT NULL,
  high DOUBLE PRECISION NOT NULL,
  low DOUBLE PRECISION NOT NULL,
  close DOUBLE PRECISION NOT NULL,
  volume DOUBLE PRECISION NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(symbol, ts)
);
CREATE INDEX IF NOT EXISTS idx_price_history_symbol_ts ON price_history(symbol, ts);
`)
	return err
}

func (h *History) Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT close FROM price_history
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`, storage.NormalizeSymbol(symbol), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying closes: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (h *History) Append(ctx context.Context, points []storage.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range points {
		sym := storage.NormalizeSymbol(p.Symbol)
		if sym == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_history(symbol, ts, open, high, low, close, volume)
			VALUES($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT(symbol, ts) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume
		`, sym, p.At.UTC(), p.Open, p.High, p.Low, p.Close, p.Volume)
		if err != nil {
			return fmt.Errorf("appending %s: %w", sym, err)
		}
	}
	return tx.Commit()
}

var _ storage.HistoryStore = (*History)(nil)
