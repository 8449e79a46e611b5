package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// PricePoint is one persisted OHLCV bar.
type PricePoint struct {
	Symbol string
	At     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HistoryStore persists price bars and serves closes for series
// reconstruction.
type HistoryStore interface {
	// Closes returns close prices for symbol with from <= at <= to, oldest first.
	Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error)

	// Append stores points. A point for an existing (symbol, at) replaces it.
	Append(ctx context.Context, points []PricePoint) error

	Close() error
}

// NormalizeSymbol is the key every store indexes symbols by.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu     sync.RWMutex
	points map[string][]PricePoint
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{points: make(map[string][]PricePoint)}
}

func (m *MemoryHistory) Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []float64
	for _, p := range m.points[NormalizeSymbol(symbol)] {
		if p.At.Before(from) || p.At.After(to) {
			continue
		}
		out = append(out, p.Close)
	}
	return out, nil
}

func (m *MemoryHistory) Append(ctx context.Context, points []PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := map[string]struct{}{}
	for _, p := range points {
		sym := NormalizeSymbol(p.Symbol)
		if sym == "" {
			continue
		}
		p.Symbol = sym
		rows := m.points[sym]
		replaced := false
		for i := range rows {
			if rows[i].At.Equal(p.At) {
				rows[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, p)
		}
		m.points[sym] = rows
		touched[sym] = struct{}{}
	}
	for sym := range touched {
		rows := m.points[sym]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].At.Before(rows[j].At) })
	}
	return nil
}

func (m *MemoryHistory) Close() error { return nil }

var _ HistoryStore = (*MemoryHistory)(nil)
