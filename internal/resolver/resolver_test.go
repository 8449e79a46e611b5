package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/provider/coingecko"
)

type fakeCatalog struct {
	mu        sync.Mutex
	coins     []coingecko.Coin
	listErr   error
	found     map[string][]coingecko.Coin
	searchErr error

	listCalls   atomic.Int32
	searchCalls atomic.Int32
	delay       time.Duration
}

func (f *fakeCatalog) CoinsList(ctx context.Context) ([]coingecko.Coin, error) {
	f.listCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.coins, nil
}

func (f *fakeCatalog) Search(ctx context.Context, query string) ([]coingecko.Coin, error) {
	f.searchCalls.Add(1)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.found[query], nil
}

func (f *fakeCatalog) set(coins []coingecko.Coin, err error) {
	f.mu.Lock()
	f.coins, f.listErr = coins, err
	f.mu.Unlock()
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestResolver(cat Catalog, opts ...Option) *Resolver {
	return New(cat, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func TestResolve_OverrideBeatsCatalog(t *testing.T) {
	cat := &fakeCatalog{coins: []coingecko.Coin{
		{ID: "batcat", Symbol: "btc"},
		{ID: "solana", Symbol: "sol"},
	}}
	r := newTestResolver(cat)

	id, ok := r.Resolve(t.Context(), "btc")
	require.True(t, ok)
	require.Equal(t, "bitcoin", id)

	id, ok = r.Resolve(t.Context(), "SOL")
	require.True(t, ok)
	require.Equal(t, "solana", id)
	require.EqualValues(t, 0, cat.searchCalls.Load())
}

func TestResolve_FirstCatalogEntryWins(t *testing.T) {
	cat := &fakeCatalog{coins: []coingecko.Coin{
		{ID: "uniswap", Symbol: "UNI"},
		{ID: "universe", Symbol: "uni"},
	}}
	r := newTestResolver(cat)

	id, ok := r.Resolve(t.Context(), "uni")
	require.True(t, ok)
	require.Equal(t, "uniswap", id)
}

func TestResolve_RebuildsAfterTTL(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cat := &fakeCatalog{coins: []coingecko.Coin{{ID: "solana", Symbol: "sol"}}}
	r := newTestResolver(cat, WithClock(clk.Now))

	_, ok := r.Resolve(t.Context(), "sol")
	require.True(t, ok)
	clk.Advance(59 * time.Minute)
	_, ok = r.Resolve(t.Context(), "sol")
	require.True(t, ok)
	require.EqualValues(t, 1, cat.listCalls.Load())

	cat.set([]coingecko.Coin{{ID: "solana-v2", Symbol: "sol"}}, nil)
	clk.Advance(2 * time.Minute)
	id, ok := r.Resolve(t.Context(), "sol")
	require.True(t, ok)
	require.Equal(t, "solana-v2", id)
	require.EqualValues(t, 2, cat.listCalls.Load())
}

func TestResolve_FailedRebuildKeepsPreviousMap(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cat := &fakeCatalog{coins: []coingecko.Coin{{ID: "solana", Symbol: "sol"}}}
	r := newTestResolver(cat, WithClock(clk.Now))
	require.NoError(t, r.RebuildIfExpired(t.Context()))

	cat.set(nil, errors.New("upstream down"))
	clk.Advance(2 * time.Hour)
	require.Error(t, r.RebuildIfExpired(t.Context()))

	id, ok := r.Resolve(t.Context(), "sol")
	require.True(t, ok)
	require.Equal(t, "solana", id)
}

func TestRebuildIfExpired_SingleFlight(t *testing.T) {
	cat := &fakeCatalog{
		coins: []coingecko.Coin{{ID: "solana", Symbol: "sol"}},
		delay: 50 * time.Millisecond,
	}
	r := newTestResolver(cat)

	var (
		wg     sync.WaitGroup
		misses atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, ok := r.Resolve(context.Background(), "sol"); !ok || id != "solana" {
				misses.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, misses.Load())
	require.EqualValues(t, 1, cat.listCalls.Load())
}

func TestResolve_SearchPrefersExactSymbol(t *testing.T) {
	cat := &fakeCatalog{
		coins: []coingecko.Coin{{ID: "solana", Symbol: "sol"}},
		found: map[string][]coingecko.Coin{
			"pepe": {
				{ID: "pepe-cash", Symbol: "PEPECASH"},
				{ID: "pepe", Symbol: "PEPE"},
			},
			"wif": {
				{ID: "dogwifcoin", Symbol: "DOGWIF"},
				{ID: "wifi", Symbol: "WIFI"},
			},
		},
	}
	r := newTestResolver(cat)

	id, ok := r.Resolve(t.Context(), "PEPE")
	require.True(t, ok)
	require.Equal(t, "pepe", id)

	id, ok = r.Resolve(t.Context(), "wif")
	require.True(t, ok)
	require.Equal(t, "dogwifcoin", id)

	// search hits are remembered
	_, ok = r.Resolve(t.Context(), "pepe")
	require.True(t, ok)
	require.EqualValues(t, 2, cat.searchCalls.Load())

	_, ok = r.Resolve(t.Context(), "nothing")
	require.False(t, ok)
}

func TestResolve_SearchError(t *testing.T) {
	cat := &fakeCatalog{searchErr: errors.New("timeout"), listErr: errors.New("timeout")}
	r := newTestResolver(cat)

	id, ok := r.Resolve(t.Context(), "abc")
	require.False(t, ok)
	require.Empty(t, id)

	// overrides resolve even with no catalog at all
	id, ok = r.Resolve(t.Context(), "eth")
	require.True(t, ok)
	require.Equal(t, "ethereum", id)
}

func TestRemember_ClearedOnRebuild(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cat := &fakeCatalog{coins: []coingecko.Coin{{ID: "solana", Symbol: "sol"}}}
	r := newTestResolver(cat, WithClock(clk.Now))
	require.NoError(t, r.RebuildIfExpired(t.Context()))

	r.Remember("SOL", "solana-wormhole")
	r.Remember("btc", "wrapped-bitcoin")

	id, _ := r.Get("sol")
	require.Equal(t, "solana-wormhole", id)
	id, _ = r.Get("btc")
	require.Equal(t, "bitcoin", id, "overrides win over remembered identifiers")

	clk.Advance(2 * time.Hour)
	require.NoError(t, r.RebuildIfExpired(t.Context()))
	id, _ = r.Get("sol")
	require.Equal(t, "solana", id)
}

func TestSnapshot(t *testing.T) {
	cat := &fakeCatalog{coins: []coingecko.Coin{
		{ID: "batcat", Symbol: "btc"},
		{ID: "solana", Symbol: "sol"},
	}}
	r := newTestResolver(cat, WithOverrides(map[string]string{" DOGE ": "dogecoin"}))
	require.NoError(t, r.RebuildIfExpired(t.Context()))
	r.Remember("ada", "cardano")

	snap := r.Snapshot()
	require.Equal(t, "bitcoin", snap["btc"])
	require.Equal(t, "solana", snap["sol"])
	require.Equal(t, "dogecoin", snap["doge"])
	require.Equal(t, "cardano", snap["ada"])

	snap["sol"] = "mutated"
	id, _ := r.Get("sol")
	require.Equal(t, "solana", id)
}
