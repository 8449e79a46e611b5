package market

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/cache"
	"pricewatch/internal/provider"
	"pricewatch/internal/series"
	"pricewatch/internal/sparkline"
)

type fakeQuotes struct {
	quotes   map[string]provider.Quote
	calls    int
	currency string
}

func (f *fakeQuotes) Fetch(_ context.Context, symbols []string, _ provider.AssetClass, currency string) map[string]provider.Quote {
	f.calls++
	f.currency = currency
	out := map[string]provider.Quote{}
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out
}

type fakeBuilder struct {
	out   map[string]series.Series
	calls int
	last  series.Request
}

func (f *fakeBuilder) Reconstruct(_ context.Context, req series.Request) series.Series {
	f.calls++
	f.last = req
	if s, ok := f.out[req.Symbol]; ok {
		return s
	}
	return series.Empty(req.Symbol)
}

func priced(v float64, pct *float64) provider.Quote {
	return provider.Quote{Price: decimal.NewNullDecimal(decimal.NewFromFloat(v)), PercentChange: pct}
}

func TestGetQuotes_DefaultsCurrency(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]provider.Quote{"BTC": priced(1, nil)}}
	svc := New(quotes, &fakeBuilder{}, WithLogger(zerolog.Nop()))

	out := svc.GetQuotes(t.Context(), []string{"BTC", "ETH"}, provider.Crypto, " ")
	require.Len(t, out, 1)
	require.Equal(t, "USD", quotes.currency)
}

func TestGetSeries_CachesNonEmpty(t *testing.T) {
	builder := &fakeBuilder{out: map[string]series.Series{
		"AAPL": {Symbol: "AAPL", Points: []float64{1, 2}, Stage: series.StageCandles},
	}}
	svc := New(&fakeQuotes{}, builder, WithCache(cache.NewMemory(time.Minute, 100)), WithLogger(zerolog.Nop()))

	for i := 0; i < 3; i++ {
		s := svc.GetSeries(t.Context(), "AAPL", provider.Stock, "usd")
		require.Equal(t, series.StageCandles, s.Stage)
	}
	require.Equal(t, 1, builder.calls)
	require.Equal(t, "USD", builder.last.Currency)

	for i := 0; i < 2; i++ {
		s := svc.GetSeries(t.Context(), "NOPE", provider.Stock, "usd")
		require.True(t, s.Empty())
	}
	require.Equal(t, 3, builder.calls, "empty series are not cached")
}

func TestGetSeries_WithoutCache(t *testing.T) {
	builder := &fakeBuilder{}
	svc := New(&fakeQuotes{}, builder, WithLogger(zerolog.Nop()))
	svc.GetSeries(t.Context(), "AAPL", provider.Stock, "USD")
	svc.GetSeries(t.Context(), "AAPL", provider.Stock, "USD")
	require.Equal(t, 2, builder.calls)
}

func TestCacheKey(t *testing.T) {
	require.Equal(t, "CRYPTO:BTC:EUR", CacheKey(" btc", provider.Crypto, "eur"))
	require.Equal(t, "STOCK:AAPL:USD", CacheKey("AAPL", provider.Stock, ""))
}

func TestRenderSparkline(t *testing.T) {
	svc := New(&fakeQuotes{}, &fakeBuilder{}, WithPalette(sparkline.Palette{Up: "lime"}))

	p := svc.RenderSparkline([]float64{1, 2}, 0, 0)
	require.Equal(t, sparkline.DefaultWidth, p.Width)
	require.Equal(t, sparkline.DefaultHeight, p.Height)
	require.Equal(t, "lime", p.Stroke)

	empty := svc.RenderSparkline(nil, 140, 36)
	require.True(t, empty.Empty())
	require.Equal(t, "lime", empty.Stroke)
}

func TestSparkline_CryptoQuoteChangeFallback(t *testing.T) {
	pct := 10.0
	quotes := &fakeQuotes{quotes: map[string]provider.Quote{"BTC": priced(110, &pct)}}
	svc := New(quotes, &fakeBuilder{}, WithLogger(zerolog.Nop()))

	s, p := svc.Sparkline(t.Context(), "btc", provider.Crypto, "USD", 140, 36)
	require.Equal(t, series.StageQuoteChange, s.Stage)
	require.True(t, s.Stage.Approximate())
	require.Len(t, s.Points, 2)
	require.InDelta(t, 100, s.Points[0], 1e-9)
	require.Equal(t, sparkline.Up, p.Trend)
	require.Equal(t, 140.0, p.Points[1].X)
}

func TestSparkline_StockHasNoQuoteChangeFallback(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]provider.Quote{"AAPL": priced(110, nil)}}
	svc := New(quotes, &fakeBuilder{}, WithLogger(zerolog.Nop()))

	s, p := svc.Sparkline(t.Context(), "AAPL", provider.Stock, "USD", 140, 36)
	require.Equal(t, series.StageNone, s.Stage)
	require.True(t, p.Empty())
	require.Zero(t, quotes.calls)
}

func TestSparkline_UsesSeries(t *testing.T) {
	builder := &fakeBuilder{out: map[string]series.Series{
		"ETH": {Symbol: "ETH", Points: []float64{3, 2, 1}, Stage: series.StageMarketChart},
	}}
	quotes := &fakeQuotes{}
	svc := New(quotes, builder, WithLogger(zerolog.Nop()))

	s, p := svc.Sparkline(t.Context(), "ETH", provider.Crypto, "EUR", 100, 20)
	require.Equal(t, series.StageMarketChart, s.Stage)
	require.Equal(t, sparkline.Down, p.Trend)
	require.Len(t, p.Points, 3)
	require.Zero(t, quotes.calls)
}
