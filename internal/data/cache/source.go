// Package cache keeps fetched historical series so repeated windows skip the provider
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
)

// Cache is a byte cache with expiry
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Fetcher is the upstream market-data source
type Fetcher interface {
	DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error)
}

// Source serves series from the cache and falls through to the upstream on a miss.
// Cache failures are logged and never fail a fetch.
type Source struct {
	upstream Fetcher
	cache    Cache
	prefix   string
	ttl      time.Duration
}

// NewSource wraps upstream with cache
func NewSource(upstream Fetcher, cache Cache, prefix string, ttl time.Duration) *Source {
	return &Source{upstream: upstream, cache: cache, prefix: prefix, ttl: ttl}
}

// DailyCloses implements Fetcher
func (s *Source) DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error) {
	key := s.key(symbol, start, end)

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Series cache read failed")
	}
	if ok {
		var series walk.Series
		if err := json.Unmarshal(data, &series); err == nil {
			return series, nil
		}
		log.Warn().Str("symbol", symbol).Msg("Discarding undecodable cached series")
	}

	series, err := s.upstream.DailyCloses(ctx, symbol, start, end)
	if err != nil {
		return walk.Series{}, err
	}

	if data, err := json.Marshal(series); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Series cache write failed")
		}
	}
	return series, nil
}

func (s *Source) key(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s", s.prefix, symbol, start.Format(walk.DateLayout), end.Format(walk.DateLayout))
}
