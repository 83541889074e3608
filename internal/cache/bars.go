// Package cache keeps recently fetched bar series in Redis so that repeated
// scans inside one bar period do not hit the data feed again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
)

// ErrMiss is returned by Get when nothing is cached for the key
var ErrMiss = errors.New("cache miss")

// BarCache stores bar series per symbol and timeframe
type BarCache interface {
	Get(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error)
	Set(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error
}

// RedisConfig holds the connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache is a BarCache backed by Redis. Entries live for one bar period.
type RedisCache struct {
	cli    *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "fxsignal:bars"
	}
	return &RedisCache{cli: cli, prefix: prefix}, nil
}

// Key returns the Redis key of a series
func Key(prefix, symbol string, tf model.Timeframe) string {
	return prefix + ":" + strings.ToUpper(symbol) + ":" + string(tf)
}

// Get returns the cached series or ErrMiss
func (r *RedisCache) Get(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	b, err := r.cli.Get(ctx, Key(r.prefix, symbol, tf)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var bars []model.Bar
	if err := json.Unmarshal(b, &bars); err != nil {
		return nil, fmt.Errorf("decode cached bars: %w", err)
	}
	return bars, nil
}

// Set stores the series with a TTL of one bar period
func (r *RedisCache) Set(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error {
	b, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("encode bars: %w", err)
	}
	if err := r.cli.Set(ctx, Key(r.prefix, symbol, tf), b, TTL(tf)).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *RedisCache) Close() error {
	return r.cli.Close()
}

// TTL is how long a series of tf stays fresh
func TTL(tf model.Timeframe) time.Duration {
	if d := tf.Duration(); d > 0 {
		return d
	}
	return time.Minute
}

// Feed supplies bar series
type Feed interface {
	GetBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error)
}

// CachedFeed reads through a BarCache in front of a Feed. Cache failures are
// logged and fall back to the feed.
type CachedFeed struct {
	feed   Feed
	cache  BarCache
	logger zerolog.Logger
}

// NewCachedFeed wraps feed with cache
func NewCachedFeed(feed Feed, cache BarCache) *CachedFeed {
	return &CachedFeed{
		feed:   feed,
		cache:  cache,
		logger: log.With().Str("component", "bar_cache").Logger(),
	}
}

// GetBars returns count bars, from the cache when it holds enough of them
func (c *CachedFeed) GetBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	bars, err := c.cache.Get(ctx, symbol, tf)
	switch {
	case err == nil && len(bars) >= count:
		return bars[len(bars)-count:], nil
	case err != nil && !errors.Is(err, ErrMiss):
		c.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("Cache read failed")
	}

	bars, err = c.feed.GetBars(ctx, symbol, tf, count)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, symbol, tf, bars); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("Cache write failed")
	}
	return bars, nil
}
