package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/mp-resolve/pkg/cache"
	"github.com/ledgerline/mp-resolve/pkg/fetch"
)

// stubResolver resolves every identifier successfully and records how
// many resolutions ran in parallel.
type stubResolver struct {
	delay      time.Duration
	inFlight   *atomic.Int32
	maxSeen    *atomic.Int32
	resolved   *atomic.Int32
	panicOn    string
	outcomeFor func(id string) fetch.Outcome
}

func (s *stubResolver) Resolve(ctx context.Context, paymentID string) fetch.Outcome {
	if s.panicOn == paymentID {
		panic("resolver exploded")
	}
	if s.inFlight != nil {
		cur := s.inFlight.Add(1)
		for {
			max := s.maxSeen.Load()
			if cur <= max || s.maxSeen.CompareAndSwap(max, cur) {
				break
			}
		}
		defer s.inFlight.Add(-1)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.resolved != nil {
		s.resolved.Add(1)
	}
	if s.outcomeFor != nil {
		return s.outcomeFor(paymentID)
	}
	return fetch.Outcome{PaymentID: paymentID, OrderID: "o-" + paymentID, HTTPStatus: 200}
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("pay-%03d", i)
	}
	return out
}

func TestRun_ExactlyOneOutcomePerIdentifier(t *testing.T) {
	resolver := &stubResolver{}
	engine := NewEngine(func(int) Resolver { return resolver }, nil, Config{Workers: 4}, zerolog.Nop())

	input := ids(37)
	seen := map[string]int{}
	for out := range engine.Run(context.Background(), input) {
		seen[out.PaymentID]++
	}

	require.Len(t, seen, len(input), "every identifier must yield an outcome")
	for _, id := range input {
		assert.Equal(t, 1, seen[id], "identifier %s must appear exactly once", id)
	}
}

func TestRun_BoundedParallelism(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	resolver := &stubResolver{
		delay:    20 * time.Millisecond,
		inFlight: &inFlight,
		maxSeen:  &maxSeen,
	}
	engine := NewEngine(func(int) Resolver { return resolver }, nil, Config{Workers: 3}, zerolog.Nop())

	for range engine.Run(context.Background(), ids(20)) {
	}

	assert.LessOrEqual(t, maxSeen.Load(), int32(3), "parallelism must not exceed the configured worker count")
	assert.Greater(t, maxSeen.Load(), int32(1), "work should actually run in parallel")
}

func TestRun_OneFactoryCallPerWorker(t *testing.T) {
	var calls atomic.Int32
	factory := func(int) Resolver {
		calls.Add(1)
		return &stubResolver{}
	}
	engine := NewEngine(factory, nil, Config{Workers: 4}, zerolog.Nop())

	for range engine.Run(context.Background(), ids(40)) {
	}

	assert.Equal(t, int32(4), calls.Load(), "each worker owns exactly one resolver")
}

func TestRun_PanicBecomesTerminalOutcome(t *testing.T) {
	resolver := &stubResolver{panicOn: "pay-005"}
	engine := NewEngine(func(int) Resolver { return resolver }, nil, Config{Workers: 2}, zerolog.Nop())

	input := ids(10)
	outcomes := map[string]fetch.Outcome{}
	for out := range engine.Run(context.Background(), input) {
		outcomes[out.PaymentID] = out
	}

	require.Len(t, outcomes, len(input), "a panic must not lose outcomes")

	bad := outcomes["pay-005"]
	assert.Equal(t, 0, bad.HTTPStatus)
	assert.Contains(t, bad.Err, "unexpected failure")

	// Siblings are unaffected.
	assert.True(t, outcomes["pay-004"].OK())
	assert.True(t, outcomes["pay-006"].OK())
}

func TestRun_EmptyInput(t *testing.T) {
	engine := NewEngine(func(int) Resolver { return &stubResolver{} }, nil, Config{Workers: 4}, zerolog.Nop())

	count := 0
	for range engine.Run(context.Background(), nil) {
		count++
	}

	assert.Zero(t, count)
}

func TestRun_CancellationStopsFeeding(t *testing.T) {
	resolver := &stubResolver{delay: 10 * time.Millisecond}
	engine := NewEngine(func(int) Resolver { return resolver }, nil, Config{Workers: 2, BufferSize: 1}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := engine.Run(ctx, ids(500))
	got := 0
	for out := range results {
		got++
		if got == 5 {
			cancel()
		}
		_ = out
	}

	assert.Less(t, got, 500, "cancellation should abandon queued identifiers")
	assert.GreaterOrEqual(t, got, 5)
}

// fakeStore is an in-memory ResumeStore.
type fakeStore struct {
	entries map[string]fetch.Outcome
	sets    atomic.Int32
}

func (f *fakeStore) Get(ctx context.Context, paymentID string) (*fetch.Outcome, error) {
	if out, ok := f.entries[paymentID]; ok {
		return &out, nil
	}
	return nil, cache.ErrCacheMiss
}

func (f *fakeStore) Set(ctx context.Context, out fetch.Outcome) error {
	f.sets.Add(1)
	return nil
}

func TestRun_ResumeCacheSkipsResolvedIdentifiers(t *testing.T) {
	store := &fakeStore{entries: map[string]fetch.Outcome{
		"pay-001": {PaymentID: "pay-001", OrderID: "cached-order", HTTPStatus: 200},
	}}

	var resolved atomic.Int32
	resolver := &stubResolver{resolved: &resolved}
	engine := NewEngine(func(int) Resolver { return resolver }, store, Config{Workers: 2}, zerolog.Nop())

	input := ids(5)
	outcomes := map[string]fetch.Outcome{}
	for out := range engine.Run(context.Background(), input) {
		outcomes[out.PaymentID] = out
	}

	require.Len(t, outcomes, 5)
	assert.Equal(t, "cached-order", outcomes["pay-001"].OrderID, "cached outcome must be used as-is")
	assert.Equal(t, int32(4), resolved.Load(), "cached identifier must not hit the API")
	assert.Equal(t, int32(4), store.sets.Load(), "live outcomes are written back to the cache")
}
