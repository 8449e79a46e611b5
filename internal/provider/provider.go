package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass partitions instruments by the provider family that prices them.
type AssetClass string

const (
	Stock  AssetClass = "STOCK"
	Crypto AssetClass = "CRYPTO"
)

// ParseAssetClass accepts any casing of "stock" or "crypto".
func ParseAssetClass(s string) (AssetClass, error) {
	switch AssetClass(strings.ToUpper(strings.TrimSpace(s))) {
	case Stock:
		return Stock, nil
	case Crypto:
		return Crypto, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Quote is the normalized shape returned for every asset class.
// An invalid Price means the symbol could not be priced this cycle.
type Quote struct {
	Symbol        string              `json:"symbol"`
	Price         decimal.NullDecimal `json:"price"`
	PercentChange *float64            `json:"percent_change"`
	Timestamp     *time.Time          `json:"timestamp"`
	PreviousClose decimal.NullDecimal `json:"previous_close"`
	Currency      string              `json:"currency,omitempty"`
	Source        string              `json:"source"`
}

// Priced reports whether the quote carries a usable (positive) price.
func (q Quote) Priced() bool {
	return q.Price.Valid && q.Price.Decimal.IsPositive()
}

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=mock -destination=mock/mock_http_client.go -source=provider.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var (
	// ErrNotConfigured means the provider has no credential; callers skip it for
	// the whole cycle.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrTransient covers network errors, timeouts and non-2xx statuses.
	ErrTransient = errors.New("transient provider failure")
	// ErrMalformed is an unexpected response shape. It is handled like ErrTransient.
	ErrMalformed = errors.New("malformed provider response")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status code: %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status code: %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrTransient }

// IsNotConfigured reports whether err stems from a missing credential.
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }

// IsTransient reports whether err is retryable on a later cycle.
// Malformed responses count as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformed)
}

// IsAccessDenied reports a 401/403 from upstream, typically a paid-tier endpoint.
func IsAccessDenied(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusForbidden || se.Code == http.StatusUnauthorized
}
