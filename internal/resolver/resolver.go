// Package resolver maps crypto tickers to the market-chart provider's coin
// identifiers.
package resolver

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pricewatch/internal/metrics"
	"pricewatch/internal/provider/coingecko"
)

// DefaultTTL is how long a catalog snapshot is served before a rebuild.
const DefaultTTL = time.Hour

// DefaultOverrides pins tickers whose catalog entries are ambiguous.
var DefaultOverrides = map[string]string{
	"btc":  "bitcoin",
	"eth":  "ethereum",
	"usdt": "tether",
}

// Catalog is the slice of the coin provider the resolver needs.
type Catalog interface {
	CoinsList(ctx context.Context) ([]coingecko.Coin, error)
	Search(ctx context.Context, query string) ([]coingecko.Coin, error)
}

type snapshot struct {
	ids     map[string]string
	builtAt time.Time
}

// Resolver caches the ticker→identifier catalog. Readers never block on a
// rebuild: they see either the previous or the new snapshot.
type Resolver struct {
	catalog   Catalog
	ttl       time.Duration
	overrides map[string]string
	now       func() time.Time
	log       zerolog.Logger

	bulk atomic.Pointer[snapshot]
	sf   singleflight.Group

	// remembered holds search hits and confirmed retry identifiers until the
	// next rebuild.
	mu         sync.RWMutex
	remembered map[string]string
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithOverrides adds manual pins on top of DefaultOverrides.
func WithOverrides(overrides map[string]string) Option {
	return func(r *Resolver) {
		for k, v := range overrides {
			k = normalize(k)
			v = strings.TrimSpace(v)
			if k != "" && v != "" {
				r.overrides[k] = v
			}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func New(catalog Catalog, options ...Option) *Resolver {
	r := &Resolver{
		catalog:    catalog,
		ttl:        DefaultTTL,
		overrides:  maps.Clone(DefaultOverrides),
		now:        time.Now,
		log:        log.Logger,
		remembered: map[string]string{},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func normalize(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// Resolve returns the identifier for symbol, rebuilding the catalog when it is
// missing or stale and falling back to a live search on a miss. It never
// returns an error: ok is false when nothing matched.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (string, bool) {
	key := normalize(symbol)
	if key == "" {
		return "", false
	}
	if err := r.RebuildIfExpired(ctx); err != nil {
		r.log.Warn().Err(err).Msg("resolver: catalog rebuild failed, serving previous map")
	}
	if id, ok := r.Get(key); ok {
		return id, true
	}

	id, err := r.Search(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", key).Msg("resolver: search failed")
		return "", false
	}
	if id == "" {
		return "", false
	}
	r.Remember(key, id)
	return id, true
}

// Get looks symbol up without touching the network. Overrides win, then
// remembered identifiers, then the catalog snapshot.
func (r *Resolver) Get(symbol string) (string, bool) {
	key := normalize(symbol)
	if id, ok := r.overrides[key]; ok {
		return id, true
	}
	r.mu.RLock()
	id, ok := r.remembered[key]
	r.mu.RUnlock()
	if ok {
		return id, true
	}
	if snap := r.bulk.Load(); snap != nil {
		id, ok = snap.ids[key]
	}
	return id, ok
}

// Search asks the provider for symbol and picks the candidate whose ticker
// equals it case-insensitively, else the first one. It returns "" when the
// provider has no candidates.
func (r *Resolver) Search(ctx context.Context, symbol string) (string, error) {
	key := normalize(symbol)
	coins, err := r.catalog.Search(ctx, key)
	if err != nil {
		return "", err
	}
	for _, c := range coins {
		if c.ID != "" && strings.EqualFold(c.Symbol, key) {
			return c.ID, nil
		}
	}
	for _, c := range coins {
		if c.ID != "" {
			return c.ID, nil
		}
	}
	return "", nil
}

// Remember records id for symbol until the next rebuild. Overrides still win.
func (r *Resolver) Remember(symbol, id string) {
	key := normalize(symbol)
	if key == "" || id == "" {
		return
	}
	r.mu.Lock()
	r.remembered[key] = id
	r.mu.Unlock()
}

func (r *Resolver) fresh() bool {
	snap := r.bulk.Load()
	return snap != nil && len(snap.ids) > 0 && r.now().Sub(snap.builtAt) < r.ttl
}

// RebuildIfExpired refreshes the catalog when it is empty or older than the
// TTL. Concurrent callers share one upstream call. On failure the previous
// snapshot stays in place.
func (r *Resolver) RebuildIfExpired(ctx context.Context) error {
	if r.fresh() {
		return nil
	}
	_, err, _ := r.sf.Do("catalog", func() (any, error) {
		if r.fresh() {
			return nil, nil
		}
		coins, err := r.catalog.CoinsList(ctx)
		if err != nil {
			metrics.ObserveRebuild(false)
			return nil, fmt.Errorf("rebuilding catalog: %w", err)
		}

		ids := make(map[string]string, len(coins)+len(r.overrides))
		for _, c := range coins {
			key := normalize(c.Symbol)
			if key == "" || c.ID == "" {
				continue
			}
			if _, dup := ids[key]; !dup {
				ids[key] = c.ID
			}
		}
		maps.Copy(ids, r.overrides)

		r.bulk.Store(&snapshot{ids: ids, builtAt: r.now()})
		r.mu.Lock()
		r.remembered = map[string]string{}
		r.mu.Unlock()

		metrics.ObserveRebuild(true)
		r.log.Debug().Int("coins", len(coins)).Int("symbols", len(ids)).Msg("resolver: catalog rebuilt")
		return nil, nil
	})
	return err
}

// Snapshot returns a copy of the effective symbol map.
func (r *Resolver) Snapshot() map[string]string {
	out := map[string]string{}
	if snap := r.bulk.Load(); snap != nil {
		maps.Copy(out, snap.ids)
	}
	r.mu.RLock()
	maps.Copy(out, r.remembered)
	r.mu.RUnlock()
	maps.Copy(out, r.overrides)
	return out
}
