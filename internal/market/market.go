// Package market is the read API the presentation layer consumes: current
// quotes, 24h series and sparklines.
package market

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"pricewatch/internal/aggregate"
	"pricewatch/internal/metrics"
	"pricewatch/internal/provider"
	"pricewatch/internal/series"
	"pricewatch/internal/sparkline"
	"pricewatch/internal/trace"
)

type QuoteFetcher interface {
	Fetch(ctx context.Context, symbols []string, class provider.AssetClass, currency string) map[string]provider.Quote
}

type SeriesBuilder interface {
	Reconstruct(ctx context.Context, req series.Request) series.Series
}

// SeriesCache holds recently reconstructed series. Implementations swallow
// their own failures and report them as misses.
type SeriesCache interface {
	Get(ctx context.Context, key string) (series.Series, bool)
	Set(ctx context.Context, key string, s series.Series)
}

type Service struct {
	quotes   QuoteFetcher
	series   SeriesBuilder
	cache    SeriesCache
	renderer sparkline.Renderer
	log      zerolog.Logger
}

type Option func(*Service)

func WithCache(c SeriesCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPalette(p sparkline.Palette) Option {
	return func(s *Service) { s.renderer = sparkline.Renderer{Palette: p} }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(quotes QuoteFetcher, builder SeriesBuilder, options ...Option) *Service {
	s := &Service{
		quotes:   quotes,
		series:   builder,
		renderer: sparkline.Renderer{Palette: sparkline.DefaultPalette},
		log:      log.Logger,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "USD"
	}
	return c
}

// CacheKey identifies a series across cache backends.
func CacheKey(symbol string, class provider.AssetClass, currency string) string {
	return string(class) + ":" + strings.ToUpper(strings.TrimSpace(symbol)) + ":" + normalizeCurrency(currency)
}

// GetQuotes returns the best-effort quotes for symbols, keyed by upper-case
// symbol. Unpriced symbols are absent.
func (s *Service) GetQuotes(ctx context.Context, symbols []string, class provider.AssetClass, currency string) map[string]provider.Quote {
	ctx, span := trace.StartSpan(ctx, "market.GetQuotes", oteltrace.WithAttributes(
		attribute.String("class", string(class)),
		attribute.Int("symbols", len(symbols)),
	))
	defer span.End()

	out := s.quotes.Fetch(ctx, symbols, class, normalizeCurrency(currency))
	span.SetAttributes(attribute.Int("priced", len(out)))
	return out
}

// GetSeries returns the trailing 24h series for symbol, served from the cache
// when warm. Empty series are never cached.
func (s *Service) GetSeries(ctx context.Context, symbol string, class provider.AssetClass, currency string) series.Series {
	ctx, span := trace.StartSpan(ctx, "market.GetSeries", oteltrace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("class", string(class)),
	))
	defer span.End()

	currency = normalizeCurrency(currency)
	key := CacheKey(symbol, class, currency)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			metrics.ObserveCacheLookup(true)
			span.SetAttributes(attribute.Bool("cached", true), attribute.String("stage", string(cached.Stage)))
			return cached
		}
		metrics.ObserveCacheLookup(false)
	}

	out := s.series.Reconstruct(ctx, series.Request{Symbol: symbol, Class: class, Currency: currency})
	span.SetAttributes(attribute.String("stage", string(out.Stage)), attribute.Int("points", len(out.Points)))
	if s.cache != nil && !out.Empty() {
		s.cache.Set(ctx, key, out)
	}
	return out
}

// RenderSparkline draws points. Non-positive dimensions take the library
// defaults.
func (s *Service) RenderSparkline(points []float64, width, height int) sparkline.Path {
	if width <= 0 {
		width = sparkline.DefaultWidth
	}
	if height <= 0 {
		height = sparkline.DefaultHeight
	}
	return s.renderer.Render(points, width, height, s.renderer.Palette.Color(sparkline.Up))
}

// Sparkline fetches the series for symbol and renders it. A crypto symbol
// with no series falls back to two points implied by its current quote's
// 24h change.
func (s *Service) Sparkline(ctx context.Context, symbol string, class provider.AssetClass, currency string, width, height int) (series.Series, sparkline.Path) {
	ctx, span := trace.StartSpan(ctx, "market.Sparkline")
	defer span.End()

	out := s.GetSeries(ctx, symbol, class, currency)
	if out.Empty() && class == provider.Crypto {
		sym := strings.ToUpper(strings.TrimSpace(symbol))
		if q, ok := s.GetQuotes(ctx, []string{sym}, class, currency)[sym]; ok {
			if pts := series.FromQuoteChange(q); len(pts) > 0 {
				out = series.Series{Symbol: sym, Points: pts, Stage: series.StageQuoteChange}
				metrics.ObserveSeriesStage(string(class), string(series.StageQuoteChange))
				s.log.Debug().Str("symbol", sym).Msg("market: sparkline from quote change")
			}
		}
	}
	return out, s.RenderSparkline(out.Points, width, height)
}

var _ QuoteFetcher = (*aggregate.Aggregator)(nil)
var _ SeriesBuilder = (*series.Reconstructor)(nil)
