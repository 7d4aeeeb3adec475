package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// BackoffPolicy decides retry eligibility and wait durations for the fetcher.
// Waits are deterministic: the register documents a doubling backoff capped
// at a ceiling, and tests assert the exact schedule.
type BackoffPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewBackoffPolicy builds a policy. The base delay doubles before each retry
// until it saturates at maxDelay; maxAttempts bounds total attempts so a
// saturated backoff cannot retry forever.
func NewBackoffPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *BackoffPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if baseDelay <= 0 {
		baseDelay = 10 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &BackoffPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// MaxAttempts returns the attempt bound.
func (p *BackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Retryable classifies a failed attempt. Rate limiting, server errors, and
// transport errors retry; other client errors and context cancellation do not.
func (p *BackoffPolicy) Retryable(statusCode int, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		// Transport-level failure without a response.
		if statusCode == 0 {
			return true
		}
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode >= 500 && statusCode < 600:
		return true
	default:
		return false
	}
}

// Backoff returns the wait before retry n (1-based): min(base * 2^(n-1), max).
func (p *BackoffPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := p.baseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}
