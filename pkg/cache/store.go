// Package cache implements the optional Redis-backed resume store.
//
// Successful outcomes are cached by payment identifier so a re-run of
// the same batch can skip identifiers that already resolved. Because a
// fetch is idempotent against stable remote state, a cached outcome is
// exactly what a live fetch would have produced. The store is optional:
// a nil *Store disables caching entirely.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/mp-resolve/pkg/fetch"
)

// Prometheus metrics for resume cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolve_cache_hits_total",
		Help: "Resume cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolve_cache_misses_total",
		Help: "Resume cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_cache_errors_total",
		Help: "Resume cache operation errors",
	}, []string{"operation"})
)

// ErrCacheMiss indicates the identifier has no cached outcome.
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL is how long cached outcomes remain valid.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "mp-resolve:outcome:"

// Store caches successful outcomes in Redis.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a resume store. ttl <= 0 selects DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Key returns the Redis key for a payment identifier.
func Key(paymentID string) string {
	return keyPrefix + paymentID
}

// Get retrieves the cached outcome for an identifier.
// Returns ErrCacheMiss when none exists. A nil Store always misses.
func (s *Store) Get(ctx context.Context, paymentID string) (*fetch.Outcome, error) {
	if s == nil {
		return nil, ErrCacheMiss
	}

	data, err := s.redis.Get(ctx, Key(paymentID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var out fetch.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("unmarshal cached outcome: %w", err)
	}

	cacheHits.Inc()
	return &out, nil
}

// Set stores a successful outcome. Failed outcomes are never cached:
// the whole point of a re-run is to retry them. A nil Store is a no-op.
func (s *Store) Set(ctx context.Context, out fetch.Outcome) error {
	if s == nil || !out.OK() {
		return nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal outcome: %w", err)
	}

	if err := s.redis.Set(ctx, Key(out.PaymentID), data, s.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cached outcome.
func (s *Store) Delete(ctx context.Context, paymentID string) error {
	if s == nil {
		return nil
	}

	if err := s.redis.Del(ctx, Key(paymentID)).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
