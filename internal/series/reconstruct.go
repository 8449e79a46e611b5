package series

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pricewatch/internal/metrics"
	"pricewatch/internal/provider"
	"pricewatch/internal/provider/coingecko"
	"pricewatch/internal/provider/finnhub"
	"pricewatch/internal/storage"
)

const (
	// Window is the trailing span every series covers.
	Window = 24 * time.Hour
	// CandleResolution is the candle width in minutes.
	CandleResolution = "5"
)

// CandleSource serves intraday equity candles.
type CandleSource interface {
	Candles(ctx context.Context, symbol, resolution string, from, to time.Time) (finnhub.Candles, error)
}

// QuoteSource serves current equity quotes.
type QuoteSource interface {
	FetchStock(ctx context.Context, symbols []string) map[string]provider.Quote
}

// ChartSource serves crypto market charts by provider identifier.
type ChartSource interface {
	MarketChart(ctx context.Context, id, vsCurrency string, days int) ([]coingecko.ChartPoint, error)
}

// Resolver maps crypto tickers to ChartSource identifiers.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (string, bool)
	Search(ctx context.Context, symbol string) (string, error)
	Remember(symbol, id string)
}

// Request asks for one symbol's series. Quote, when set, is used by the
// quote stages instead of fetching a fresh one.
type Request struct {
	Symbol   string
	Class    provider.AssetClass
	Currency string
	Quote    *provider.Quote
}

type strategy func(ctx context.Context, req Request) ([]float64, Stage)

// Reconstructor runs the fallback cascade. Every source is optional; a
// missing source is a stage that always comes up empty.
type Reconstructor struct {
	candles  CandleSource
	history  storage.HistoryStore
	quotes   QuoteSource
	charts   ChartSource
	resolver Resolver

	now func() time.Time
	log zerolog.Logger
}

type Option func(*Reconstructor)

func WithCandles(c CandleSource) Option {
	return func(r *Reconstructor) { r.candles = c }
}

func WithHistory(h storage.HistoryStore) Option {
	return func(r *Reconstructor) { r.history = h }
}

func WithQuotes(q QuoteSource) Option {
	return func(r *Reconstructor) { r.quotes = q }
}

func WithMarketChart(c ChartSource, res Resolver) Option {
	return func(r *Reconstructor) {
		r.charts = c
		r.resolver = res
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconstructor) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconstructor) { r.log = l }
}

func New(options ...Option) *Reconstructor {
	r := &Reconstructor{now: time.Now, log: log.Logger}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *Reconstructor) cascade(class provider.AssetClass) []strategy {
	switch class {
	case provider.Stock:
		return []strategy{
			func(ctx context.Context, req Request) ([]float64, Stage) {
				return r.FromCandles(ctx, req.Symbol), StageCandles
			},
			func(ctx context.Context, req Request) ([]float64, Stage) {
				return r.FromHistory(ctx, req.Symbol), StageHistory
			},
			r.FromQuote,
		}
	case provider.Crypto:
		return []strategy{
			func(ctx context.Context, req Request) ([]float64, Stage) {
				return r.FromMarketChart(ctx, req.Symbol, req.Currency)
			},
		}
	}
	return nil
}

// Reconstruct returns the first non-empty result of the class's cascade, or
// an empty series with StageNone. It never fails.
func (r *Reconstructor) Reconstruct(ctx context.Context, req Request) Series {
	req.Symbol = normalize(req.Symbol)
	if req.Symbol == "" {
		return Empty("")
	}
	for _, run := range r.cascade(req.Class) {
		points, stage := run(ctx, req)
		if len(points) == 0 {
			continue
		}
		metrics.ObserveSeriesStage(string(req.Class), string(stage))
		r.log.Debug().
			Str("symbol", req.Symbol).
			Str("stage", string(stage)).
			Int("points", len(points)).
			Msg("series: reconstructed")
		return Series{Symbol: req.Symbol, Points: points, Stage: stage}
	}
	metrics.ObserveSeriesStage(string(req.Class), string(StageNone))
	r.log.Debug().Str("symbol", req.Symbol).Str("class", string(req.Class)).Msg("series: no data")
	return Empty(req.Symbol)
}

// FromCandles reads the trailing window of 5-minute candles. Only an "ok"
// payload counts; null and zero closes are dropped.
func (r *Reconstructor) FromCandles(ctx context.Context, symbol string) []float64 {
	if r.candles == nil {
		return nil
	}
	symbol = normalize(symbol)
	to := r.now()
	c, err := r.candles.Candles(ctx, symbol, CandleResolution, to.Add(-Window), to)
	if err != nil {
		switch {
		case provider.IsNotConfigured(err):
			r.log.Debug().Str("symbol", symbol).Msg("series: candle provider not configured")
		case provider.IsAccessDenied(err):
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("series: candles not available on this plan")
		default:
			r.log.Error().Err(err).Str("symbol", symbol).Msg("series: candle fetch failed")
		}
		return nil
	}
	if !c.OK() {
		return nil
	}
	out := make([]float64, 0, len(c.Close))
	for _, v := range c.Close {
		if v == nil || *v == 0 || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			continue
		}
		out = append(out, *v)
	}
	return out
}

// FromHistory reads persisted closes for the trailing window, oldest first.
func (r *Reconstructor) FromHistory(ctx context.Context, symbol string) []float64 {
	if r.history == nil {
		return nil
	}
	symbol = normalize(symbol)
	to := r.now()
	closes, err := r.history.Closes(ctx, symbol, to.Add(-Window), to)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("series: history lookup failed")
		return nil
	}
	return clean(closes)
}

// FromQuote synthesizes QuotePoints points from the request's quote, or from
// a freshly fetched one when the request carries none.
func (r *Reconstructor) FromQuote(ctx context.Context, req Request) ([]float64, Stage) {
	q := req.Quote
	if q == nil && r.quotes != nil {
		sym := normalize(req.Symbol)
		if fetched, ok := r.quotes.FetchStock(ctx, []string{sym})[sym]; ok {
			q = &fetched
		}
	}
	if q == nil {
		return nil, StageNone
	}
	return Interpolate(*q, QuotePoints)
}

// FromMarketChart resolves symbol and reads one day of market chart in
// currency. When that comes up empty it searches once for a fresh
// identifier; a different identifier that yields data is remembered.
func (r *Reconstructor) FromMarketChart(ctx context.Context, symbol, currency string) ([]float64, Stage) {
	if r.charts == nil || r.resolver == nil {
		return nil, StageNone
	}
	id, ok := r.resolver.Resolve(ctx, symbol)
	if !ok {
		return nil, StageNone
	}
	vs := strings.ToLower(strings.TrimSpace(currency))
	if vs == "" {
		vs = "usd"
	}

	if points := r.chart(ctx, id, vs); len(points) > 0 {
		return points, StageMarketChart
	}

	fresh, err := r.resolver.Search(ctx, symbol)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("series: identifier search failed")
		return nil, StageNone
	}
	if fresh == "" || fresh == id {
		return nil, StageNone
	}
	points := r.chart(ctx, fresh, vs)
	if len(points) == 0 {
		return nil, StageNone
	}
	r.resolver.Remember(symbol, fresh)
	return points, StageMarketChartRetry
}

func (r *Reconstructor) chart(ctx context.Context, id, vs string) []float64 {
	samples, err := r.charts.MarketChart(ctx, id, vs, 1)
	if err != nil {
		r.log.Warn().Err(err).Str("id", id).Str("vs", vs).Msg("series: market chart failed")
		return nil
	}
	points := make([]float64, 0, len(samples))
	for _, s := range samples {
		points = append(points, s.Price)
	}
	return clean(points)
}
