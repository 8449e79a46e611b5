// Command catalogdump writes the crypto ticker -> CoinGecko id map the
// resolver serves, optionally narrowed to the tickers in a symbols file.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/logger"
)

type entry struct {
	Symbol string `json:"symbol"`
	ID     string `json:"id"`
}

type dump struct {
	GeneratedAt time.Time `json:"generated_at"`
	Count       int       `json:"count"`
	Missing     []string  `json:"missing,omitempty"`
	Entries     []entry   `json:"entries"`
}

func main() {
	var outPath string
	var symbolsFile string
	var configPath string
	var timeoutSec int

	flag.StringVar(&outPath, "out", "-", "output file, - for stdout")
	flag.StringVar(&symbolsFile, "symbols-file", "", "JSON object or newline list of tickers to resolve (optional)")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.toml (optional)")
	flag.IntVar(&timeoutSec, "timeout", 60, "overall timeout seconds")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build")
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	if err := a.Resolver.RebuildIfExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog rebuild failed; dumping overrides only")
	}

	var d dump
	if symbolsFile != "" {
		names, err := readKeys(symbolsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("read symbols")
		}
		log.Info().Int("symbols", len(names)).Msg("resolving")
		d = resolveAll(ctx, a.Resolver, names)
	} else {
		d = fromSnapshot(a.Resolver.Snapshot())
	}
	d.GeneratedAt = time.Now().UTC()

	var w io.Writer = os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatal().Err(err).Msg("create out")
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriterSize(w, 1<<20)
	enc := json.NewEncoder(bw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
	if err := bw.Flush(); err != nil {
		log.Fatal().Err(err).Msg("flush")
	}
	log.Info().Int("entries", d.Count).Int("missing", len(d.Missing)).Msg("catalog dumped")
}

type resolver interface {
	Resolve(ctx context.Context, symbol string) (string, bool)
}

func resolveAll(ctx context.Context, r resolver, names []string) dump {
	var d dump
	for _, n := range names {
		if id, ok := r.Resolve(ctx, n); ok {
			d.Entries = append(d.Entries, entry{Symbol: n, ID: id})
		} else {
			d.Missing = append(d.Missing, n)
		}
	}
	d.Count = len(d.Entries)
	return d
}

func fromSnapshot(snap map[string]string) dump {
	d := dump{Entries: make([]entry, 0, len(snap))}
	for sym, id := range snap {
		d.Entries = append(d.Entries, entry{Symbol: strings.ToUpper(sym), ID: id})
	}
	sort.Slice(d.Entries, func(i, j int) bool { return d.Entries[i].Symbol < d.Entries[j].Symbol })
	d.Count = len(d.Entries)
	return d
}

// readKeys accepts either a JSON object, whose keys are the tickers, or one
// ticker per line. Tickers come back upper-cased, sorted and deduplicated.
func readKeys(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []string
	var m map[string]any
	if err := json.Unmarshal(b, &m); err == nil {
		for k := range m {
			raw = append(raw, k)
		}
	} else {
		raw = strings.Split(string(b), "\n")
	}

	seen := map[string]bool{}
	names := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}
