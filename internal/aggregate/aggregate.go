package aggregate

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/provider"
	"pricewatch/internal/provider/coinmarketcap"
	"pricewatch/internal/provider/finnhub"
)

// DefaultConcurrency bounds in-flight per-symbol stock quote calls.
const DefaultConcurrency = 4

// CryptoQuoter prices many crypto symbols in one call.
type CryptoQuoter interface {
	QuotesLatest(ctx context.Context, symbols []string, convert string) (map[string]coinmarketcap.Quote, error)
}

// StockQuoter prices one equity per call.
type StockQuoter interface {
	Quote(ctx context.Context, symbol string) (finnhub.Quote, error)
}

// Aggregator fetches current quotes and normalizes them to provider.Quote.
// Failures are logged and the affected symbols are simply absent from the
// result; no method returns an error.
type Aggregator struct {
	crypto      CryptoQuoter
	stock       StockQuoter
	concurrency int
	log         zerolog.Logger
}

type Option func(*Aggregator)

// WithConcurrency sets how many stock quotes may be in flight at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// New builds an Aggregator. Either quoter may be nil, in which case that
// asset class always yields an empty result.
func New(crypto CryptoQuoter, stock StockQuoter, options ...Option) *Aggregator {
	a := &Aggregator{
		crypto:      crypto,
		stock:       stock,
		concurrency: DefaultConcurrency,
		log:         log.Logger,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Normalize upper-cases, trims and deduplicates symbols preserving order.
func Normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Fetch routes symbols to the quoter for class. currency only applies to
// crypto; equities are quoted in USD.
func (a *Aggregator) Fetch(ctx context.Context, symbols []string, class provider.AssetClass, currency string) map[string]provider.Quote {
	switch class {
	case provider.Crypto:
		return a.FetchCrypto(ctx, symbols, currency)
	case provider.Stock:
		return a.FetchStock(ctx, symbols)
	default:
		a.log.Warn().Str("class", string(class)).Msg("aggregate: unknown asset class")
		return map[string]provider.Quote{}
	}
}

// FetchCrypto prices all symbols with a single batched call.
func (a *Aggregator) FetchCrypto(ctx context.Context, symbols []string, convert string) map[string]provider.Quote {
	out := map[string]provider.Quote{}
	syms := Normalize(symbols)
	if len(syms) == 0 || a.crypto == nil {
		return out
	}
	convert = strings.ToUpper(strings.TrimSpace(convert))
	if convert == "" {
		convert = "USD"
	}

	res, err := a.crypto.QuotesLatest(ctx, syms, convert)
	if err != nil {
		a.logFailure(err, coinmarketcap.Name, strings.Join(syms, ","))
		return out
	}

	for _, sym := range syms {
		q, ok := res[sym]
		if !ok || q.Price == nil || *q.Price <= 0 {
			continue
		}
		out[sym] = provider.Quote{
			Symbol:        sym,
			Price:         decimal.NewNullDecimal(decimal.NewFromFloat(*q.Price)),
			PercentChange: q.PercentChange24h,
			Timestamp:     q.LastUpdated,
			Currency:      convert,
			Source:        coinmarketcap.Name,
		}
	}
	return out
}

// FetchStock prices each symbol with its own call. Calls run concurrently up
// to the configured limit and a failing symbol never cancels the others.
func (a *Aggregator) FetchStock(ctx context.Context, symbols []string) map[string]provider.Quote {
	out := map[string]provider.Quote{}
	syms := Normalize(symbols)
	if len(syms) == 0 || a.stock == nil {
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(a.concurrency)
	for _, sym := range syms {
		g.Go(func() error {
			q, ok := a.stockQuote(ctx, sym)
			if !ok {
				return nil
			}
			mu.Lock()
			out[sym] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (a *Aggregator) stockQuote(ctx context.Context, sym string) (provider.Quote, bool) {
	raw, err := a.stock.Quote(ctx, sym)
	if err != nil {
		a.logFailure(err, finnhub.Name, sym)
		return provider.Quote{}, false
	}
	if raw.Current == nil || *raw.Current <= 0 {
		a.log.Debug().Str("symbol", sym).Msg("aggregate: no price")
		return provider.Quote{}, false
	}

	price := *raw.Current
	q := provider.Quote{
		Symbol:    sym,
		Price:     decimal.NewNullDecimal(decimal.NewFromFloat(price)),
		Timestamp: raw.Timestamp(),
		Currency:  "USD",
		Source:    finnhub.Name,
	}
	if raw.PreviousClose != nil && *raw.PreviousClose != 0 {
		prev := *raw.PreviousClose
		q.PreviousClose = decimal.NewNullDecimal(decimal.NewFromFloat(prev))
		pct := (price - prev) / prev * 100
		q.PercentChange = &pct
	}
	return q, true
}

func (a *Aggregator) logFailure(err error, source, symbols string) {
	switch {
	case provider.IsNotConfigured(err):
		a.log.Debug().Str("provider", source).Msg("aggregate: provider not configured")
	case provider.IsTransient(err):
		a.log.Warn().Err(err).Str("provider", source).Str("symbols", symbols).Msg("aggregate: quote fetch failed")
	default:
		a.log.Error().Err(err).Str("provider", source).Str("symbols", symbols).Msg("aggregate: quote fetch failed")
	}
}
