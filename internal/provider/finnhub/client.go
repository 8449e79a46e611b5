package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pricewatch/internal/provider"
)

// Name identifies this provider in quotes, logs and metrics.
const Name = "Finnhub"

const (
	baseURL = "https://finnhub.io"

	quoteTimeout = 8 * time.Second
)

type Client struct {
	baseURL    string
	token      string
	httpClient provider.HTTPClient
	header     http.Header
	timeout    time.Duration
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithTimeout overrides the candle timeout. Quote calls keep their shorter bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Finnhub client authenticated by token. An empty token yields a
// client whose calls fail with provider.ErrNotConfigured.
func New(token string, options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: http.DefaultClient,
		header:     http.Header{},
		timeout:    provider.DefaultTimeout,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Configured() bool { return c.token != "" }

// Quote is Finnhub's current quote. Fields are pointers because the API sends
// nulls (and zeroes) for unknown symbols.
type Quote struct {
	Current       *float64 `json:"c"`
	High          *float64 `json:"h"`
	Low           *float64 `json:"l"`
	Open          *float64 `json:"o"`
	PreviousClose *float64 `json:"pc"`
	Time          *int64   `json:"t"`
}

// Timestamp converts t (unix seconds) when positive.
func (q Quote) Timestamp() *time.Time {
	if q.Time == nil || *q.Time <= 0 {
		return nil
	}
	ts := time.Unix(*q.Time, 0).UTC()
	return &ts
}

// Candles is the candle payload; Status is "ok" or "no_data".
type Candles struct {
	Status string     `json:"s"`
	Close  []*float64 `json:"c"`
	Time   []int64    `json:"t"`
}

// OK reports whether the payload carries usable data.
func (c Candles) OK() bool { return c.Status == "ok" }

func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	var q Quote
	if !c.Configured() {
		return q, fmt.Errorf("%s: %w", Name, provider.ErrNotConfigured)
	}
	err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/api/v1/quote",
		Query: url.Values{
			"symbol": []string{symbol},
			"token":  []string{c.token},
		},
		Header:  c.header,
		Timeout: quoteTimeout,
	}, &q)
	if err != nil {
		return Quote{}, fmt.Errorf("fetching quote %s: %w", symbol, err)
	}
	return q, nil
}

// Candles fetches OHLC candles between from and to at the given resolution
// ("1", "5", "15", "30", "60", "D", ...).
func (c *Client) Candles(ctx context.Context, symbol, resolution string, from, to time.Time) (Candles, error) {
	var out Candles
	if !c.Configured() {
		return out, fmt.Errorf("%s: %w", Name, provider.ErrNotConfigured)
	}
	err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/api/v1/stock/candle",
		Query: url.Values{
			"symbol":     []string{symbol},
			"resolution": []string{resolution},
			"from":       []string{strconv.FormatInt(from.Unix(), 10)},
			"to":         []string{strconv.FormatInt(to.Unix(), 10)},
			"token":      []string{c.token},
		},
		Header:  c.header,
		Timeout: c.timeout,
	}, &out)
	if err != nil {
		return Candles{}, fmt.Errorf("fetching candles %s: %w", symbol, err)
	}
	return out, nil
}
