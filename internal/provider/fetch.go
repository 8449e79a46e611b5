package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pricewatch/internal/metrics"
)

// DefaultTimeout bounds a provider call when the request does not set one.
const DefaultTimeout = 10 * time.Second

// Request describes a single JSON GET against a provider.
type Request struct {
	Provider string
	URL      string
	Query    url.Values
	Header   http.Header
	Timeout  time.Duration
}

// GetJSON performs the request and decodes the body into out.
// Every failure is classified: a non-2xx response is a *StatusError, network
// errors and timeouts wrap ErrTransient and undecodable bodies wrap ErrMalformed.
// No retries are attempted.
func GetJSON(ctx context.Context, hc HTTPClient, r Request, out any) (err error) {
	defer func() { metrics.ObserveProviderCall(r.Provider, outcome(err)) }()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: performing request: %v", ErrTransient, r.Provider, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{Provider: r.Provider, Code: res.StatusCode, Body: string(b)}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %s: reading body: %v", ErrTransient, r.Provider, err)
		}
		return fmt.Errorf("%w: %s: decoding body: %v", ErrMalformed, r.Provider, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotConfigured(err):
		return "not_configured"
	case IsAccessDenied(err):
		return "access_denied"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
