package progress

import (
	"go.uber.org/zap"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/metrics"
)

// Sink consumes progress events. Implementations must be safe for repeated
// calls; the pipeline is sequential so no concurrency guarantees are needed.
type Sink interface {
	Publish(evt Event)
}

// Multi fans one event out to several sinks in order.
type Multi []Sink

// Publish forwards the event to each wrapped sink.
func (m Multi) Publish(evt Event) {
	for _, s := range m {
		s.Publish(evt)
	}
}

// LogSink emits structured logs for the progress stream. It is the default
// sink so every fetch attempt leaves a trace in the run log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Publish logs the event using structured fields.
func (s *LogSink) Publish(evt Event) {
	fields := []zap.Field{
		zap.String("stage", string(evt.Stage)),
		zap.Time("ts", evt.TS),
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.EudractNumber != "" {
		fields = append(fields, zap.String("eudract_number", evt.EudractNumber))
	}
	if evt.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", evt.Attempt))
	}
	if evt.StatusCode != 0 {
		fields = append(fields, zap.Int("status_code", evt.StatusCode))
	}
	if evt.Bytes > 0 {
		fields = append(fields, zap.Int64("bytes", evt.Bytes))
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}

	switch evt.Stage {
	case StageTrialFailed, StageFetchRetry:
		s.logger.Warn("progress event", fields...)
	default:
		s.logger.Info("progress event", fields...)
	}
}

// PrometheusSink translates progress events into metric observations so the
// core pipeline never imports the metrics package directly.
type PrometheusSink struct{}

// NewPrometheusSink initializes collectors and returns the sink.
func NewPrometheusSink() *PrometheusSink {
	metrics.Init()
	return &PrometheusSink{}
}

// Publish records the event against the Prometheus collectors.
func (PrometheusSink) Publish(evt Event) {
	switch evt.Stage {
	case StageFetchAttempt:
		outcome := "error"
		if evt.StatusCode >= 200 && evt.StatusCode < 300 {
			outcome = "ok"
		}
		metrics.ObserveFetchAttempt(outcome, int(evt.Bytes))
		if evt.PacingWait > 0 {
			metrics.ObservePacingWait(evt.PacingWait)
		}
	case StageFetchRetry:
		metrics.ObserveRetry()
		metrics.ObserveBackoffWait(evt.Dur)
	case StageTrialSucceeded:
		metrics.ObserveTrial("succeeded")
	case StageTrialFailed:
		metrics.ObserveTrial("failed")
	case StageDocExtracted:
		outcome := "ok"
		if evt.Note != "" {
			outcome = "error"
		}
		metrics.ObserveExtraction(outcome)
	case StageRunStart, StageRunDone:
		// Run lifecycle is visible via logs; no counter needed.
	}
}
