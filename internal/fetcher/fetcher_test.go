package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/clock"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/progress"
)

type scriptedAttempt struct {
	body   []byte
	status int
	err    error
}

type scriptedTransport struct {
	mu       sync.Mutex
	attempts []scriptedAttempt
	calls    int
	at       []time.Time
}

func (s *scriptedTransport) do(_ string) ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.at = append(s.at, time.Now())
	idx := s.calls
	s.calls++
	if idx >= len(s.attempts) {
		idx = len(s.attempts) - 1
	}
	a := s.attempts[idx]
	return a.body, a.status, a.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingSink) Publish(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) byStage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, e := range r.events {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

func newTestFetcher(t *scriptedTransport, cfg Config, sink progress.Sink) *Fetcher {
	return newWithTransport(cfg, t, clock.NewSystem(), nil, sink)
}

func TestFetch_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{attempts: []scriptedAttempt{{body: []byte("ok"), status: 200}}}
	sink := &recordingSink{}
	f := newTestFetcher(tr, Config{
		RequestDelay: time.Millisecond,
		MaxBackoff:   10 * time.Millisecond,
		MaxAttempts:  3,
	}, sink)

	body, err := f.Fetch(context.Background(), "https://register.example/trial/1")
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), body)
	require.Equal(t, 1, tr.calls)
	require.Len(t, sink.byStage(progress.StageFetchAttempt), 1)
	require.Empty(t, sink.byStage(progress.StageFetchRetry))
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{attempts: []scriptedAttempt{
		{status: 503},
		{status: 429},
		{body: []byte("finally"), status: 200},
	}}
	sink := &recordingSink{}
	f := newTestFetcher(tr, Config{
		RequestDelay: time.Millisecond,
		MaxBackoff:   4 * time.Millisecond,
		MaxAttempts:  5,
	}, sink)

	body, err := f.Fetch(context.Background(), "https://register.example/trial/2")
	require.NoError(t, err)
	require.Equal(t, []byte("finally"), body)
	require.Equal(t, 3, tr.calls)

	retries := sink.byStage(progress.StageFetchRetry)
	require.Len(t, retries, 2)
	// Deterministic schedule: base, then base*2 (capped at 4ms).
	require.Equal(t, time.Millisecond, retries[0].Dur)
	require.Equal(t, 2*time.Millisecond, retries[1].Dur)
}

func TestFetch_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{attempts: []scriptedAttempt{{status: 404}}}
	f := newTestFetcher(tr, Config{
		RequestDelay: time.Millisecond,
		MaxBackoff:   10 * time.Millisecond,
		MaxAttempts:  5,
	}, &recordingSink{})

	_, err := f.Fetch(context.Background(), "https://register.example/missing")
	require.Error(t, err)
	require.Equal(t, 1, tr.calls)

	var failure *FetchFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, 404, failure.StatusCode)
	require.False(t, failure.Retryable)
	require.Equal(t, 1, failure.Attempts)
}

func TestFetch_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{attempts: []scriptedAttempt{{status: 500}}}
	f := newTestFetcher(tr, Config{
		RequestDelay: time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		MaxAttempts:  3,
	}, &recordingSink{})

	_, err := f.Fetch(context.Background(), "https://register.example/flaky")
	require.Error(t, err)
	require.Equal(t, 3, tr.calls)

	var failure *FetchFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, 500, failure.StatusCode)
	require.True(t, failure.Retryable)
	require.Equal(t, 3, failure.Attempts)
}

func TestFetch_PacingFloorBetweenRequests(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{attempts: []scriptedAttempt{{body: []byte("a"), status: 200}}}
	delay := 50 * time.Millisecond
	f := newTestFetcher(tr, Config{
		RequestDelay: delay,
		MaxBackoff:   delay,
		MaxAttempts:  2,
	}, &recordingSink{})

	ctx := context.Background()
	_, err := f.Fetch(ctx, "https://register.example/a")
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "https://register.example/b")
	require.NoError(t, err)

	require.Len(t, tr.at, 2)
	gap := tr.at[1].Sub(tr.at[0])
	// The second request start must honor the pacing floor. Allow a small
	// scheduling tolerance below the nominal delay.
	require.GreaterOrEqual(t, gap, delay-5*time.Millisecond)
}

func TestFetch_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	// The base backoff (== RequestDelay) is long enough that cancellation
	// lands inside the first backoff pause.
	tr := &scriptedTransport{attempts: []scriptedAttempt{{status: 503}}}
	f := newTestFetcher(tr, Config{
		RequestDelay: 200 * time.Millisecond,
		MaxBackoff:   time.Hour,
		MaxAttempts:  5,
	}, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.Fetch(ctx, "https://register.example/slow")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetch_TransportErrorRetries(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{attempts: []scriptedAttempt{
		{err: errors.New("connection reset")},
		{body: []byte("ok"), status: 200},
	}}
	f := newTestFetcher(tr, Config{
		RequestDelay: time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		MaxAttempts:  3,
	}, &recordingSink{})

	body, err := f.Fetch(context.Background(), "https://register.example/reset")
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), body)
	require.Equal(t, 2, tr.calls)
}
