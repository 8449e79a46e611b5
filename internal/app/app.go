// Package app assembles the provider clients, stores and services from a
// loaded config. Every binary builds through here.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pricewatch/internal/aggregate"
	"pricewatch/internal/cache"
	"pricewatch/internal/config"
	"pricewatch/internal/httpx"
	"pricewatch/internal/market"
	"pricewatch/internal/provider"
	"pricewatch/internal/provider/coingecko"
	"pricewatch/internal/provider/coinmarketcap"
	"pricewatch/internal/provider/finnhub"
	"pricewatch/internal/provider/ratelimit"
	"pricewatch/internal/resolver"
	"pricewatch/internal/series"
	"pricewatch/internal/sparkline"
	"pricewatch/internal/storage"
	"pricewatch/internal/storage/postgres"
	"pricewatch/internal/storage/sqlite"
	rediscache "pricewatch/internal/storage/redis"
)

type App struct {
	Config        config.Config
	CoinMarketCap *coinmarketcap.Client
	Finnhub       *finnhub.Client
	CoinGecko     *coingecko.Client
	Resolver      *resolver.Resolver
	Aggregator    *aggregate.Aggregator
	History       storage.HistoryStore
	Series        *series.Reconstructor
	Market        *market.Service

	closers []func() error
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Build wires every component. Nothing here touches the network; provider
// calls happen lazily on first use.
func Build(cfg config.Config) (*App, error) {
	a := &App{Config: cfg}
	base := httpx.New(seconds(cfg.Server.RequestTimeoutSec))

	cmcOpts := []coinmarketcap.Option{
		coinmarketcap.WithHTTPClient(ratelimit.Wrap(base, cfg.CoinMarketCap.MaxRequestsPerMinute, cfg.CoinMarketCap.Burst, 0)),
	}
	if cfg.CoinMarketCap.BaseURL != "" {
		cmcOpts = append(cmcOpts, coinmarketcap.WithBaseURL(cfg.CoinMarketCap.BaseURL))
	}
	if cfg.CoinMarketCap.TimeoutSec > 0 {
		cmcOpts = append(cmcOpts, coinmarketcap.WithTimeout(seconds(cfg.CoinMarketCap.TimeoutSec)))
	}
	a.CoinMarketCap = coinmarketcap.New(cfg.CoinMarketCap.APIKey, cmcOpts...)
	if !a.CoinMarketCap.Configured() {
		log.Warn().Msg("CMC_API_KEY not set; crypto quotes disabled")
	}

	fhOpts := []finnhub.Option{
		finnhub.WithHTTPClient(ratelimit.Wrap(base, cfg.Finnhub.MaxRequestsPerMinute, cfg.Finnhub.Burst, 0)),
	}
	if cfg.Finnhub.BaseURL != "" {
		fhOpts = append(fhOpts, finnhub.WithBaseURL(cfg.Finnhub.BaseURL))
	}
	if cfg.Finnhub.TimeoutSec > 0 {
		fhOpts = append(fhOpts, finnhub.WithTimeout(seconds(cfg.Finnhub.TimeoutSec)))
	}
	a.Finnhub = finnhub.New(cfg.Finnhub.APIKey, fhOpts...)
	if !a.Finnhub.Configured() {
		log.Warn().Msg("FINNHUB_KEY not set; stock quotes and candles disabled")
	}

	minInterval := time.Duration(cfg.CoinGecko.MinRequestIntervalMs) * time.Millisecond
	cgOpts := []coingecko.Option{
		coingecko.WithHTTPClient(ratelimit.Wrap(base, cfg.CoinGecko.MaxRequestsPerMinute, cfg.CoinGecko.Burst, minInterval)),
	}
	if cfg.CoinGecko.BaseURL != "" {
		cgOpts = append(cgOpts, coingecko.WithBaseURL(cfg.CoinGecko.BaseURL))
	}
	if cfg.CoinGecko.TimeoutSec > 0 {
		cgOpts = append(cgOpts, coingecko.WithTimeout(seconds(cfg.CoinGecko.TimeoutSec)))
	}
	a.CoinGecko = coingecko.New(cgOpts...)

	resOpts := []resolver.Option{resolver.WithOverrides(cfg.CoinGecko.Overrides)}
	if cfg.CoinGecko.CatalogTTLSec > 0 {
		resOpts = append(resOpts, resolver.WithTTL(seconds(cfg.CoinGecko.CatalogTTLSec)))
	}
	a.Resolver = resolver.New(a.CoinGecko, resOpts...)

	a.Aggregator = aggregate.New(a.CoinMarketCap, a.Finnhub, aggregate.WithConcurrency(cfg.Finnhub.MaxConcurrency))

	history, err := openHistory(cfg.History)
	if err != nil {
		return nil, err
	}
	a.History = history
	a.closers = append(a.closers, history.Close)

	a.Series = series.New(
		series.WithCandles(a.Finnhub),
		series.WithHistory(a.History),
		series.WithQuotes(a.Aggregator),
		series.WithMarketChart(a.CoinGecko, a.Resolver),
	)

	opts := []market.Option{market.WithPalette(sparkline.Palette{
		Up:   cfg.Sparkline.Up,
		Down: cfg.Sparkline.Down,
		Flat: cfg.Sparkline.Flat,
	})}
	if c := a.openCache(cfg.Cache); c != nil {
		opts = append(opts, market.WithCache(c))
	}
	a.Market = market.New(a.Aggregator, a.Series, opts...)
	return a, nil
}

func openHistory(cfg config.History) (storage.HistoryStore, error) {
	switch cfg.Driver {
	case "sqlite":
		h, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return h, nil
	case "postgres":
		h, err := postgres.New(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres history: %w", err)
		}
		return h, nil
	default:
		return storage.NewMemoryHistory(), nil
	}
}

func (a *App) openCache(cfg config.Cache) market.SeriesCache {
	ttl := seconds(cfg.TTLSec)
	switch cfg.Driver {
	case "none":
		return nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		return rediscache.NewSeriesCache(rdb, cfg.Prefix, ttl)
	default:
		return cache.NewMemory(ttl, cfg.MaxItems)
	}
}

// Close releases stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// AssetClass parses a request's class parameter, defaulting to crypto.
func AssetClass(s string) (provider.AssetClass, error) {
	if s == "" {
		return provider.Crypto, nil
	}
	return provider.ParseAssetClass(s)
}
