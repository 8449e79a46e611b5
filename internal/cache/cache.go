package cache

import (
	"context"
	"sync"
	"time"

	"pricewatch/internal/series"
)

// entry stores one cached series with expiry.
type entry struct {
	expiresAt time.Time
	series    series.Series
}

// Memory caches reconstructed series in process for a TTL.
type Memory struct {
	TTL      time.Duration
	MaxItems int

	now   func() time.Time
	mu    sync.RWMutex
	items map[string]entry
}

func NewMemory(ttl time.Duration, maxItems int) *Memory {
	return &Memory{TTL: ttl, MaxItems: maxItems, now: time.Now, items: map[string]entry{}}
}

// Get returns the cached series for key if it has not expired.
func (c *Memory) Get(_ context.Context, key string) (series.Series, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return series.Series{}, false
	}
	return e.series, true
}

// Set stores s under key. A non-positive TTL disables caching.
func (c *Memory) Set(_ context.Context, key string, s series.Series) {
	if c.TTL <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]entry{}
	}
	c.items[key] = entry{expiresAt: now.Add(c.TTL), series: s}

	// best-effort cap: expired entries go first, then arbitrary ones
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		for k, v := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if k != key && !now.Before(v.expiresAt) {
				delete(c.items, k)
			}
		}
		for k := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if k != key {
				delete(c.items, k)
			}
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
