package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pricewatch/internal/series"
)

// SeriesCache shares reconstructed series between server replicas.
// Redis failures degrade to cache misses.
type SeriesCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewSeriesCache(rdb *redis.Client, prefix string, ttl time.Duration) *SeriesCache {
	if prefix == "" {
		prefix = "pricewatch"
	}
	return &SeriesCache{rdb: rdb, prefix: prefix, ttl: ttl, log: log.Logger}
}

func (c *SeriesCache) key(k string) string { return c.prefix + ":series:" + k }

func (c *SeriesCache) Get(ctx context.Context, key string) (series.Series, bool) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("redis: series get failed")
		}
		return series.Series{}, false
	}
	var s series.Series
	if err := json.Unmarshal(b, &s); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis: series decode failed")
		return series.Series{}, false
	}
	return s, true
}

func (c *SeriesCache) Set(ctx context.Context, key string, s series.Series) {
	if c.ttl <= 0 {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), b, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis: series set failed")
	}
}
