package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"pricewatch/internal/provider"
)

// MinInterval enforces a minimum spacing between request starts.
// Concurrent callers each reserve the next free slot, or return early if
// their request context is canceled first.
type MinInterval struct {
	Next     provider.HTTPClient
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Do(req *http.Request) (*http.Response, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		now := time.Now()
		slot := m.next
		if slot.Before(now) {
			slot = now
		}
		m.next = slot.Add(m.Interval)
		m.mu.Unlock()

		if wait := time.Until(slot); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-t.C:
			}
		}
	}
	return m.Next.Do(req)
}

// Wrap picks the limiter a provider config asks for: a token bucket when a
// per-minute budget is set, else a minimum interval, else the client itself.
func Wrap(hc provider.HTTPClient, rpm, burst int, minInterval time.Duration) provider.HTTPClient {
	switch {
	case rpm > 0:
		return &Client{Next: hc, TB: PerMinute(rpm, burst)}
	case minInterval > 0:
		return &MinInterval{Next: hc, Interval: minInterval}
	default:
		return hc
	}
}
