// Package dispatch runs fetch workers over the whole identifier set
// under bounded parallelism and streams outcomes as they complete.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/mp-resolve/pkg/cache"
	"github.com/ledgerline/mp-resolve/pkg/fetch"
)

// Prometheus metrics for the dispatch engine.
var (
	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resolve_workers_active",
		Help: "Number of dispatch workers currently running",
	})

	panicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolve_worker_panics_recovered_total",
		Help: "Worker panics converted into terminal outcomes",
	})
)

// Resolver resolves one identifier to one outcome. *fetch.Worker is
// the production implementation.
type Resolver interface {
	Resolve(ctx context.Context, paymentID string) fetch.Outcome
}

// WorkerFactory builds the resolver a worker goroutine will own for
// its whole lifetime. It is called once per worker, from that worker's
// goroutine, so each worker gets its own HTTP client and connection
// pool.
type WorkerFactory func(workerID int) Resolver

// ResumeStore is the subset of the resume cache the engine consults.
// Satisfied by *cache.Store.
type ResumeStore interface {
	Get(ctx context.Context, paymentID string) (*fetch.Outcome, error)
	Set(ctx context.Context, out fetch.Outcome) error
}

// Config holds engine configuration.
type Config struct {
	// Workers is the fixed pool size.
	Workers int

	// BufferSize for the queue and result channels.
	BufferSize int
}

// DefaultConfig returns safe engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    5,
		BufferSize: 256,
	}
}

// Engine distributes identifiers across a fixed worker pool.
type Engine struct {
	factory WorkerFactory
	store   ResumeStore
	config  Config
	logger  zerolog.Logger
}

// NewEngine creates an engine. store may be nil to disable the resume
// cache.
func NewEngine(factory WorkerFactory, store ResumeStore, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	return &Engine{
		factory: factory,
		store:   store,
		config:  cfg,
		logger:  logger,
	}
}

// Run resolves every identifier and returns the outcome stream. The
// channel closes once all workers drain; outcomes arrive in completion
// order, not input order. Every identifier yields exactly one outcome
// unless the context is cancelled first, in which case unstarted
// identifiers are abandoned but no started one is lost.
func (e *Engine) Run(ctx context.Context, paymentIDs []string) <-chan fetch.Outcome {
	workers := e.config.Workers
	if workers > len(paymentIDs) && len(paymentIDs) > 0 {
		workers = len(paymentIDs)
	}

	e.logger.Info().
		Int("identifiers", len(paymentIDs)).
		Int("workers", workers).
		Msg("Starting dispatch")

	queue := make(chan string, e.config.BufferSize)
	results := make(chan fetch.Outcome, e.config.BufferSize)

	go func() {
		defer close(queue)
		for _, id := range paymentIDs {
			select {
			case queue <- id:
			case <-ctx.Done():
				e.logger.Warn().
					Err(ctx.Err()).
					Msg("Dispatch interrupted, abandoning queued identifiers")
				return
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			e.worker(ctx, workerID, queue, results)
			return nil
		})
	}

	go func() {
		// Workers never return errors; failures become outcomes.
		_ = g.Wait()
		close(results)
	}()

	return results
}

// worker owns one resolver (and therefore one HTTP client) and drains
// the queue.
func (e *Engine) worker(ctx context.Context, workerID int, queue <-chan string, results chan<- fetch.Outcome) {
	workersActive.Inc()
	defer workersActive.Dec()

	resolver := e.factory(workerID)
	processed := 0

	for paymentID := range queue {
		results <- e.resolveOne(ctx, resolver, paymentID)
		processed++
	}

	if processed > 0 {
		e.logger.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker drained")
	}
}

// resolveOne produces exactly one outcome for the identifier. A panic
// anywhere below becomes a terminal outcome instead of killing the
// sibling workers.
func (e *Engine) resolveOne(ctx context.Context, resolver Resolver, paymentID string) (out fetch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			panicsRecovered.Inc()
			e.logger.Error().
				Str("payment_id", paymentID).
				Interface("panic", r).
				Msg("Worker panic recovered")
			out = fetch.Outcome{
				PaymentID:  paymentID,
				HTTPStatus: 0,
				Err:        fmt.Sprintf("unexpected failure: %v", r),
			}
		}
	}()

	if e.store != nil {
		cached, err := e.store.Get(ctx, paymentID)
		switch {
		case err == nil:
			e.logger.Debug().
				Str("payment_id", paymentID).
				Msg("Resume cache hit, skipping fetch")
			return *cached
		case !errors.Is(err, cache.ErrCacheMiss):
			e.logger.Warn().
				Err(err).
				Str("payment_id", paymentID).
				Msg("Resume cache lookup failed, fetching live")
		}
	}

	out = resolver.Resolve(ctx, paymentID)

	if e.store != nil {
		if err := e.store.Set(ctx, out); err != nil {
			e.logger.Warn().
				Err(err).
				Str("payment_id", paymentID).
				Msg("Failed to cache outcome")
		}
	}

	return out
}
