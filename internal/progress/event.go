// Package progress defines the event structures emitted by the crawl pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageFetchAttempt   Stage = "FETCH_ATTEMPT"
	StageFetchRetry     Stage = "FETCH_RETRY"
	StageTrialSucceeded Stage = "TRIAL_SUCCEEDED"
	StageTrialFailed    Stage = "TRIAL_FAILED"
	StageDocExtracted   Stage = "DOCUMENT_EXTRACTED"
)

// Event captures a single component of harvest progress.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// URL is the optional request URL; it should not contain credentials.
	URL string
	// EudractNumber scopes trial events to a register identifier.
	EudractNumber string
	// Attempt carries the 1-based attempt counter for fetch events.
	Attempt int
	// StatusCode is the HTTP status observed, 0 when transport failed.
	StatusCode int
	// Bytes carries the response size for successful fetch attempts.
	Bytes int64
	// Dur captures execution latency for fetches and run completion; for
	// FETCH_RETRY it is the backoff wait before the next attempt.
	Dur time.Duration
	// PacingWait is the time spent blocked on the inter-request pacing floor.
	PacingWait time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageFetchAttempt, StageFetchRetry:
		if e.URL == "" {
			return errors.New("fetch events require a url")
		}
		if e.Attempt <= 0 {
			return errors.New("fetch events require a positive attempt")
		}
	case StageTrialSucceeded, StageTrialFailed:
		if e.EudractNumber == "" {
			return errors.New("trial events require a eudract number")
		}
	case StageDocExtracted:
		if e.URL == "" {
			return errors.New("extraction events require a url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
