// Package fetcher issues single paced requests against the trial register.
// It enforces a hard inter-request delay, retries transient failures with
// deterministic exponential backoff, and reports every attempt.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/clock"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/progress"
)

// Config holds the settings for one fetcher instance.
type Config struct {
	UserAgent    string
	Accept       string
	RequestDelay time.Duration
	MaxBackoff   time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

// Fetcher performs paced, retrying fetches. The pacing state (the token
// bucket) is owned by the instance, never package-global, so independent
// runs and tests cannot contaminate each other.
type Fetcher struct {
	limiter   *rate.Limiter
	policy    *BackoffPolicy
	transport transport
	clock     clock.Clock
	events    progress.Sink
	logger    *zap.Logger
}

// transport performs a single request attempt.
type transport interface {
	do(url string) (body []byte, statusCode int, err error)
}

// New constructs a Fetcher backed by a Colly collector.
func New(cfg Config, logger *zap.Logger, events progress.Sink) (*Fetcher, error) {
	if cfg.RequestDelay <= 0 {
		return nil, fmt.Errorf("request delay must be > 0")
	}
	t, err := newCollyTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("init transport: %w", err)
	}
	return newWithTransport(cfg, t, clock.NewSystem(), logger, events), nil
}

func newWithTransport(cfg Config, t transport, clk clock.Clock, logger *zap.Logger, events progress.Sink) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = progress.Multi{}
	}
	return &Fetcher{
		limiter:   rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
		policy:    NewBackoffPolicy(cfg.MaxAttempts, cfg.RequestDelay, cfg.MaxBackoff),
		transport: t,
		clock:     clk,
		events:    events,
		logger:    logger,
	}
}

// Fetch retrieves url, honoring the pacing floor before every attempt and
// backing off between retries. It returns the response body on success or a
// *FetchFailure once the request is non-retryable or attempts are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastStatus int
	var lastErr error

	for attempt := 1; ; attempt++ {
		waitStart := f.clock.Now()
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pacing wait: %w", err)
		}
		paced := f.clock.Now().Sub(waitStart)

		start := f.clock.Now()
		body, status, err := f.transport.do(url)
		dur := f.clock.Now().Sub(start)

		evt := progress.Event{
			TS:         f.clock.Now(),
			Stage:      progress.StageFetchAttempt,
			URL:        url,
			Attempt:    attempt,
			StatusCode: status,
			Bytes:      int64(len(body)),
			Dur:        dur,
			PacingWait: paced,
		}
		if err != nil {
			evt.Note = err.Error()
		}
		f.events.Publish(evt)

		if err == nil && status >= 200 && status < 300 {
			return body, nil
		}
		lastStatus, lastErr = status, err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !f.policy.Retryable(status, err) {
			f.logger.Warn("request not retryable",
				zap.String("url", url), zap.Int("status_code", status), zap.Error(err))
			return nil, &FetchFailure{URL: url, Attempts: attempt, StatusCode: status, Retryable: false, Err: err}
		}
		if attempt >= f.policy.MaxAttempts() {
			break
		}

		wait := f.policy.Backoff(attempt)
		f.events.Publish(progress.Event{
			TS:      f.clock.Now(),
			Stage:   progress.StageFetchRetry,
			URL:     url,
			Attempt: attempt,
			Dur:     wait,
		})
		if err := f.pause(ctx, wait); err != nil {
			return nil, err
		}
	}

	f.logger.Warn("retry budget exhausted",
		zap.String("url", url), zap.Int("attempts", f.policy.MaxAttempts()), zap.Error(lastErr))
	return nil, &FetchFailure{
		URL:        url,
		Attempts:   f.policy.MaxAttempts(),
		StatusCode: lastStatus,
		Retryable:  true,
		Err:        lastErr,
	}
}

// pause blocks for the backoff delay or until the context finishes.
func (f *Fetcher) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// collyTransport fetches one page per call via a cloned Colly collector.
type collyTransport struct {
	base   *colly.Collector
	accept string
}

func newCollyTransport(cfg Config) (*collyTransport, error) {
	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	// Retries re-request the same URL on purpose.
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)
	return &collyTransport{base: base, accept: cfg.Accept}, nil
}

type fetchResult struct {
	body   []byte
	status int
	err    error
}

func (t *collyTransport) do(rawURL string) ([]byte, int, error) {
	collector := t.base.Clone()
	collector.AllowURLRevisit = true

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		if t.accept != "" {
			r.Headers.Set("Accept", t.accept)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{
			body:   append([]byte{}, r.Body...),
			status: r.StatusCode,
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{status: status, err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, 0, fmt.Errorf("visit: %w", err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		return res.body, res.status, res.err
	default:
		return nil, 0, errors.New("fetch produced no result")
	}
}
