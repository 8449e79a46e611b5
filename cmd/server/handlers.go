package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pricewatch/internal/app"
	"pricewatch/internal/provider"
	"pricewatch/internal/series"
	"pricewatch/internal/sparkline"
)

const maxSymbols = 1000

// marketAPI is the slice of market.Service the handlers use.
type marketAPI interface {
	GetQuotes(ctx context.Context, symbols []string, class provider.AssetClass, currency string) map[string]provider.Quote
	GetSeries(ctx context.Context, symbol string, class provider.AssetClass, currency string) series.Series
	Sparkline(ctx context.Context, symbol string, class provider.AssetClass, currency string, width, height int) (series.Series, sparkline.Path)
}

type api struct {
	market     marketAPI
	timeout    time.Duration
	currencies []string
	width      int
	height     int
}

type quotesResponse struct {
	Class    provider.AssetClass `json:"class"`
	Currency string              `json:"currency"`
	Quotes   []provider.Quote    `json:"quotes"`
	Missing  []string            `json:"missing,omitempty"`
}

type seriesResponse struct {
	series.Series
	Approximate bool `json:"approximate"`
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			a.handleGetQuotes(w, r)
		case http.MethodPost:
			a.handlePostQuotes(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("GET /api/series", a.handleSeries)
	mux.HandleFunc("GET /api/sparkline", a.handleSparkline)
	return withJSONHeaders(withGzip(recoverPanic(limitBody(mux))))
}

// params holds the query parameters shared by every endpoint.
type params struct {
	class    provider.AssetClass
	currency string
}

func (a *api) parseParams(w http.ResponseWriter, r *http.Request) (params, bool) {
	q := r.URL.Query()
	class, err := app.AssetClass(q.Get("class"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return params{}, false
	}
	currency := strings.ToUpper(strings.TrimSpace(q.Get("currency")))
	if currency == "" {
		currency = "USD"
	}
	if len(a.currencies) > 0 && !slices.Contains(a.currencies, currency) {
		http.Error(w, "unsupported currency "+currency, http.StatusBadRequest)
		return params{}, false
	}
	return params{class: class, currency: currency}, true
}

func (a *api) handleGetQuotes(w http.ResponseWriter, r *http.Request) {
	p, ok := a.parseParams(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		http.Error(w, "missing symbols query param", http.StatusBadRequest)
		return
	}
	a.writeQuotes(w, r, p, splitCSV(raw))
}

type postBody struct {
	Symbols []string `json:"symbols"`
}

func (a *api) handlePostQuotes(w http.ResponseWriter, r *http.Request) {
	p, ok := a.parseParams(w, r)
	if !ok {
		return
	}
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(b.Symbols) == 0 {
		http.Error(w, "symbols cannot be empty", http.StatusBadRequest)
		return
	}
	a.writeQuotes(w, r, p, b.Symbols)
}

func (a *api) writeQuotes(w http.ResponseWriter, r *http.Request, p params, symbols []string) {
	if len(symbols) > maxSymbols {
		http.Error(w, "too many symbols (max 1000)", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	got := a.market.GetQuotes(ctx, symbols, p.class, p.currency)
	resp := quotesResponse{Class: p.class, Currency: p.currency, Quotes: make([]provider.Quote, 0, len(got))}
	seen := map[string]bool{}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if q, ok := got[s]; ok {
			resp.Quotes = append(resp.Quotes, q)
		} else {
			resp.Missing = append(resp.Missing, s)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleSeries(w http.ResponseWriter, r *http.Request) {
	p, ok := a.parseParams(w, r)
	if !ok {
		return
	}
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	s := a.market.GetSeries(ctx, symbol, p.class, p.currency)
	writeJSON(w, http.StatusOK, seriesResponse{Series: s, Approximate: s.Stage.Approximate()})
}

func (a *api) handleSparkline(w http.ResponseWriter, r *http.Request) {
	p, ok := a.parseParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	symbol := strings.TrimSpace(q.Get("symbol"))
	if symbol == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return
	}
	width := queryInt(q.Get("width"), a.width)
	height := queryInt(q.Get("height"), a.height)
	if width <= 0 || height <= 0 || width > 4096 || height > 4096 {
		http.Error(w, "width and height must be in 1..4096", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	s, path := a.market.Sparkline(ctx, symbol, p.class, p.currency, width, height)
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Series-Stage", string(s.Stage))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, path.SVG())
}

func queryInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Debug().Err(err).Msg("server: write response")
	}
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client accepts gzip.
func withGzip(next http.Handler) http.Handler {
	gzPool := sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request bodies at 1MB.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("server: handler panic")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
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
