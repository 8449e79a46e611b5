package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pricewatch/internal/storage"
)

type History struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	h := &History{db: db}
	if err := h.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite %s: %w", path, err)
	}
	return h, nil
}

func (h *History) Close() error { return h.db.Close() }

func (h *History) migrate(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS price_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  open REAL NOT NULL,
  high REAL NOT NULL,
  low REAL NOT NULL,
  close REAL NOT NULL,
  volume REAL NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(symbol, ts_ms)
);
CREATE INDEX IF NOT EXISTS idx_price_history_symbol_ts ON price_history(symbol, ts_ms);
`)
	return err
}

func (h *History) Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT close FROM price_history
		WHERE symbol = ? AND ts_ms >= ? AND ts_ms <= ?
		ORDER BY ts_ms ASC
	`, storage.NormalizeSymbol(symbol), from.UnixMilli(), to.UnixMilli())
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history(symbol, ts_ms, open, high, low, close, volume, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ts_ms) DO UPDATE SET
		open=excluded.open, high=excluded.high, low=excluded.low,
		close=excluded.close, volume=excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, p := range points {
		sym := storage.NormalizeSymbol(p.Symbol)
		if sym == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, sym, p.At.UnixMilli(), p.Open, p.High, p.Low, p.Close, p.Volume, now); err != nil {
			return fmt.Errorf("appending %s: %w", sym, err)
		}
	}
	return tx.Commit()
}

var _ storage.HistoryStore = (*History)(nil)
