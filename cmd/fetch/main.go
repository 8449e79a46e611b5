package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/internal/provider"
	"pricewatch/internal/series"
	"pricewatch/internal/storage"
)

func main() {
	var symbolsCSV string
	var classFlag string
	var currency string
	var configPath string
	var timeout int
	var record bool
	var withSeries bool

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "BTC,ETH"), "comma-separated tickers")
	flag.StringVar(&classFlag, "class", getenv("ASSET_CLASS", "crypto"), "asset class: crypto or stock")
	flag.StringVar(&currency, "currency", getenv("CURRENCY", "USD"), "quote currency (crypto only)")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.toml (optional)")
	flag.IntVar(&timeout, "timeout", 0, "overall timeout seconds (default: server.request_timeout_sec)")
	flag.BoolVar(&record, "record", false, "append fetched quotes to the configured history store")
	flag.BoolVar(&withSeries, "series", false, "also reconstruct each symbol's 24h series")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	class, err := app.AssetClass(classFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("class")
	}
	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal().Msg("no symbols given")
	}
	if timeout <= 0 {
		timeout = cfg.Server.RequestTimeoutSec
	}

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build")
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	quotes := a.Market.GetQuotes(ctx, symbols, class, currency)
	out := output{Quotes: sortedQuotes(quotes)}
	if withSeries {
		out.Series = map[string]series.Series{}
		for _, s := range symbols {
			sr := a.Market.GetSeries(ctx, s, class, currency)
			out.Series[sr.Symbol] = sr
		}
	}

	if record {
		points := pricePoints(out.Quotes, time.Now())
		if err := a.History.Append(ctx, points); err != nil {
			log.Error().Err(err).Msg("record history")
		} else {
			log.Info().Int("points", len(points)).Str("driver", cfg.History.Driver).Msg("recorded history")
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
}

type output struct {
	Quotes []provider.Quote         `json:"quotes"`
	Series map[string]series.Series `json:"series,omitempty"`
}

func sortedQuotes(m map[string]provider.Quote) []provider.Quote {
	out := make([]provider.Quote, 0, len(m))
	for _, q := range m {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// pricePoints turns priced quotes into history bars stamped with the quote
// time, or now when the provider gave none.
func pricePoints(quotes []provider.Quote, now time.Time) []storage.PricePoint {
	points := make([]storage.PricePoint, 0, len(quotes))
	for _, q := range quotes {
		if !q.Priced() {
			continue
		}
		at := now
		if q.Timestamp != nil {
			at = *q.Timestamp
		}
		p := q.Price.Decimal.InexactFloat64()
		points = append(points, storage.PricePoint{Symbol: q.Symbol, At: at, Open: p, High: p, Low: p, Close: p})
	}
	return points
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
