package fetcher

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_DoublesAndCaps(t *testing.T) {
	t.Parallel()

	base := 10 * time.Second
	ceiling := 300 * time.Second
	p := NewBackoffPolicy(12, base, ceiling)

	// min(base * 2^(n-1), ceiling)
	require.Equal(t, 10*time.Second, p.Backoff(1))
	require.Equal(t, 20*time.Second, p.Backoff(2))
	require.Equal(t, 40*time.Second, p.Backoff(3))
	require.Equal(t, 80*time.Second, p.Backoff(4))
	require.Equal(t, 160*time.Second, p.Backoff(5))
	require.Equal(t, 300*time.Second, p.Backoff(6))
	require.Equal(t, 300*time.Second, p.Backoff(7))
	require.Equal(t, 300*time.Second, p.Backoff(50))
}

func TestBackoff_NeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy(8, 7*time.Second, 60*time.Second)
	for n := 1; n <= 30; n++ {
		require.LessOrEqual(t, p.Backoff(n), 60*time.Second, "retry %d", n)
	}
}

func TestRetryable_StatusClasses(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy(3, time.Second, time.Minute)

	require.True(t, p.Retryable(429, nil))
	require.True(t, p.Retryable(408, nil))
	require.True(t, p.Retryable(500, nil))
	require.True(t, p.Retryable(503, nil))

	require.False(t, p.Retryable(400, nil))
	require.False(t, p.Retryable(403, nil))
	require.False(t, p.Retryable(404, nil))
	require.False(t, p.Retryable(200, nil))
}

func TestRetryable_Errors(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy(3, time.Second, time.Minute)

	require.True(t, p.Retryable(0, errors.New("connection refused")))
	require.True(t, p.Retryable(0, &net.DNSError{IsTimeout: true}))
	require.False(t, p.Retryable(0, context.Canceled))
	require.False(t, p.Retryable(0, context.DeadlineExceeded))
}

func TestNewBackoffPolicy_Defaults(t *testing.T) {
	t.Parallel()

	p := NewBackoffPolicy(0, 0, 0)
	require.Equal(t, 8, p.MaxAttempts())
	require.Equal(t, 10*time.Second, p.Backoff(1))
}
