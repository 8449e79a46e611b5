package coingecko

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

// Name identifies this provider in logs and metrics.
const Name = "CoinGecko"

const (
	baseURL = "https://api.coingecko.com"

	searchTimeout = 8 * time.Second
)

// Client is a client for the public CoinGecko API. No credential is needed.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient provider.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// timeout bounds catalog and chart calls.
	timeout time.Duration
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request, e.g. a
// demo API key.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithTimeout overrides the catalog and chart timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a CoinGecko client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		timeout:    provider.DefaultTimeout,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Coin is one catalog or search entry.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// ChartPoint is one sample of a market chart.
type ChartPoint struct {
	At    time.Time
	Price float64
}

// CoinsList fetches the full coin catalog.
func (c *Client) CoinsList(ctx context.Context) ([]Coin, error) {
	var coins []Coin
	err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/api/v3/coins/list",
		Header:   c.header,
		Timeout:  c.timeout,
	}, &coins)
	if err != nil {
		return nil, fmt.Errorf("fetching coin list: %w", err)
	}
	return coins, nil
}

// MarketChart fetches the price history of id over the last days, oldest
// first. Samples with a null price are skipped.
func (c *Client) MarketChart(ctx context.Context, id, vsCurrency string, days int) ([]ChartPoint, error) {
	if days <= 0 {
		days = 1
	}
	var body struct {
		Prices [][]*float64 `json:"prices"`
	}
	err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/api/v3/coins/" + url.PathEscape(id) + "/market_chart",
		Query: url.Values{
			"vs_currency": []string{strings.ToLower(vsCurrency)},
			"days":        []string{strconv.Itoa(days)},
		},
		Header:  c.header,
		Timeout: c.timeout,
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("fetching market chart %s: %w", id, err)
	}

	points := make([]ChartPoint, 0, len(body.Prices))
	for _, sample := range body.Prices {
		if len(sample) < 2 || sample[0] == nil || sample[1] == nil {
			continue
		}
		points = append(points, ChartPoint{
			At:    time.UnixMilli(int64(*sample[0])).UTC(),
			Price: *sample[1],
		})
	}
	return points, nil
}

// Search returns the coins matching query in the provider's ranking order.
func (c *Client) Search(ctx context.Context, query string) ([]Coin, error) {
	var body struct {
		Coins []Coin `json:"coins"`
	}
	err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/api/v3/search",
		Query:    url.Values{"query": []string{query}},
		Header:   c.header,
		Timeout:  searchTimeout,
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	return body.Coins, nil
}
