// Package cache implements the weather-series response cache: a bounded
// in-memory LRU in front of the durable store, with request coalescing so
// concurrent lookups of the same key trigger one upstream fetch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"geodash/internal/geo"
	"geodash/internal/storage"
	"geodash/internal/types"
)

// Persistence is the durable layer behind the in-memory LRU. Satisfied by
// *storage.Store.
type Persistence interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// FetchFunc produces a series on cache miss.
type FetchFunc func(ctx context.Context) (types.WeatherSeries, error)

// SeriesCache caches hourly weather series keyed by rounded location, date
// range and field set. Safe for concurrent use.
type SeriesCache struct {
	memory  *lru.Cache[string, types.WeatherSeries]
	durable Persistence
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a SeriesCache holding at most maxEntries series in memory.
// durable may be nil, in which case the cache is memory-only.
func New(maxEntries int, durable Persistence, logger *slog.Logger) (*SeriesCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxEntries)
	}
	if logger == nil {
		logger = slog.Default()
	}
	memory, err := lru.New[string, types.WeatherSeries](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &SeriesCache{memory: memory, durable: durable, logger: logger}, nil
}

// Key builds the deterministic cache key for a series lookup. Coordinates
// are rounded to cache-key precision so nearby centroids share entries, and
// fields are sorted so the same set always yields the same key.
func Key(point types.LatLng, start, end time.Time, fields []types.VariableField) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s|%s|%s|%s",
		geo.FormatKey(point),
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"),
		strings.Join(names, ","),
	)
}

// GetOrFetch returns the cached series for key, loading it from the durable
// layer or via fetch on miss. Concurrent calls for the same key are
// coalesced into one fetch.
func (c *SeriesCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (types.WeatherSeries, error) {
	if series, ok := c.memory.Get(key); ok {
		return series, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Another waiter may have populated memory while we queued.
		if series, ok := c.memory.Get(key); ok {
			return series, nil
		}

		if series, ok := c.loadDurable(ctx, key); ok {
			c.memory.Add(key, series)
			return series, nil
		}

		series, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.memory.Add(key, series)
		c.storeDurable(ctx, key, series)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(types.WeatherSeries), nil
}

// Peek reports whether key is resident in memory without touching recency.
func (c *SeriesCache) Peek(key string) bool {
	_, ok := c.memory.Peek(key)
	return ok
}

// Len returns the number of series resident in memory.
func (c *SeriesCache) Len() int {
	return c.memory.Len()
}

// Purge drops all in-memory entries. Durable entries are untouched.
func (c *SeriesCache) Purge() {
	c.memory.Purge()
}

func (c *SeriesCache) loadDurable(ctx context.Context, key string) (types.WeatherSeries, bool) {
	if c.durable == nil {
		return nil, false
	}
	raw, err := c.durable.Get(ctx, storage.BuildKey(storage.NamespaceSeries, key))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("durable cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var series types.WeatherSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		c.logger.Warn("durable cache entry is corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}
	return series, true
}

func (c *SeriesCache) storeDurable(ctx context.Context, key string, series types.WeatherSeries) {
	if c.durable == nil {
		return
	}
	raw, err := json.Marshal(series)
	if err != nil {
		c.logger.Warn("failed to encode series for durable cache", "key", key, "error", err)
		return
	}
	// A durable write failure only costs a refetch after restart.
	if err := c.durable.Put(ctx, storage.BuildKey(storage.NamespaceSeries, key), raw); err != nil {
		c.logger.Warn("durable cache write failed", "key", key, "error", err)
	}
}
