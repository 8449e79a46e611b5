package coinmarketcap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pricewatch/internal/provider"
)

// Name identifies this provider in quotes, logs and metrics.
const Name = "CoinMarketCap"

const baseURL = "https://pro-api.coinmarketcap.com"

// Client is a client for the CoinMarketCap pro API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// apiKey is sent as X-CMC_PRO_API_KEY; empty means not configured.
	apiKey string
	// httpClient is the HTTP client.
	httpClient provider.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// timeout bounds each call.
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

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a CoinMarketCap client. An empty key yields a client whose
// calls fail with provider.ErrNotConfigured.
func New(apiKey string, options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: http.DefaultClient,
		header:     http.Header{},
		timeout:    10 * time.Second,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Quote is one symbol's quote in the requested conversion currency.
type Quote struct {
	Symbol           string
	Price            *float64
	PercentChange24h *float64
	LastUpdated      *time.Time
}

type quotesResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price            *float64   `json:"price"`
			PercentChange24h *float64   `json:"percent_change_24h"`
			LastUpdated      *time.Time `json:"last_updated"`
		} `json:"quote"`
	} `json:"data"`
}

// QuotesLatest fetches the latest quotes for all symbols in one batched call.
// The result is keyed by upper-case symbol; symbols missing from the response,
// or without an entry under convert, are absent.
func (c *Client) QuotesLatest(ctx context.Context, symbols []string, convert string) (map[string]Quote, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%s: %w", Name, provider.ErrNotConfigured)
	}
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}
	convert = strings.ToUpper(strings.TrimSpace(convert))
	if convert == "" {
		convert = "USD"
	}

	header := c.header.Clone()
	header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	var body quotesResponse
	err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/v1/cryptocurrency/quotes/latest",
		Query: url.Values{
			"symbol":  []string{strings.Join(symbols, ",")},
			"convert": []string{convert},
		},
		Header:  header,
		Timeout: c.timeout,
	}, &body)
	if err != nil {
		return nil, err
	}
	if body.Status.ErrorCode != 0 && len(body.Data) == 0 {
		return nil, fmt.Errorf("%w: %s: code=%d msg=%q", provider.ErrMalformed, Name, body.Status.ErrorCode, body.Status.ErrorMessage)
	}

	out := make(map[string]Quote, len(body.Data))
	for key, item := range body.Data {
		q, ok := item.Quote[convert]
		if !ok {
			continue
		}
		sym := strings.ToUpper(key)
		out[sym] = Quote{
			Symbol:           sym,
			Price:            q.Price,
			PercentChange24h: q.PercentChange24h,
			LastUpdated:      q.LastUpdated,
		}
	}
	return out, nil
}
