// Package scraper drives one harvest run: discover the trials registered in
// a date window, harvest each one through the fetcher and extractor, and
// partition the outcomes into successes and errors.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/extract"
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/progress"
)

// Pagination stops on the first empty page; the cap only guards against a
// source that keeps serving non-empty pages forever.
const maxSearchPages = 500

// Fetcher retrieves one URL with pacing and retries already applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config holds scraper settings.
type Config struct {
	BaseURL string
}

// Scraper harvests trials sequentially. Trials move Discovered -> Fetching
// -> Succeeded|Failed; retries live entirely inside the Fetcher, never here.
type Scraper struct {
	base      *url.URL
	fetcher   Fetcher
	extractFn func([]byte) (string, []extract.Table, error)
	events    progress.Sink
	logger    *zap.Logger
}

// New builds a Scraper against the register at cfg.BaseURL.
func New(cfg Config, fetcher Fetcher, logger *zap.Logger, events progress.Sink) (*Scraper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = progress.Multi{}
	}
	return &Scraper{
		base:      base,
		fetcher:   fetcher,
		extractFn: extract.Extract,
		events:    events,
		logger:    logger,
	}, nil
}

// Run harvests every trial registered in [start, end]. Individual trial
// failures land in the partition's error side; Run itself fails only when
// the context is canceled or when discovery failed outright and produced
// zero trials.
func (s *Scraper) Run(ctx context.Context, start, end time.Time) (*Partition, error) {
	s.events.Publish(progress.Event{
		TS:    time.Now().UTC(),
		Stage: progress.StageRunStart,
		Note:  fmt.Sprintf("window %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
	})

	refs, discoverErr := s.discover(ctx, start, end)
	if len(refs) == 0 {
		if discoverErr != nil {
			return nil, fmt.Errorf("discovery: %w", discoverErr)
		}
		s.logger.Info("no trials registered in window",
			zap.String("start", start.Format("2006-01-02")),
			zap.String("end", end.Format("2006-01-02")))
		return &Partition{}, nil
	}
	if discoverErr != nil {
		// Later pages failed but earlier pages produced trials; harvest
		// what was discovered.
		s.logger.Warn("discovery incomplete", zap.Error(discoverErr))
	}

	part := &Partition{}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trial, err := s.harvest(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			part.Errors = append(part.Errors, TrialError{
				EudractNumber: ref.EudractNumber,
				Reason:        err.Error(),
			})
			s.events.Publish(progress.Event{
				TS:            time.Now().UTC(),
				Stage:         progress.StageTrialFailed,
				EudractNumber: ref.EudractNumber,
				Note:          err.Error(),
			})
			continue
		}
		part.Successes = append(part.Successes, trial)
		s.events.Publish(progress.Event{
			TS:            time.Now().UTC(),
			Stage:         progress.StageTrialSucceeded,
			EudractNumber: ref.EudractNumber,
		})
	}

	s.events.Publish(progress.Event{
		TS:    time.Now().UTC(),
		Stage: progress.StageRunDone,
		Note:  fmt.Sprintf("%d succeeded, %d failed", len(part.Successes), len(part.Errors)),
	})
	return part, nil
}

// discover walks the paginated search results for the window and returns
// one ref per distinct trial. A page fetch failure stops pagination; refs
// already collected are returned alongside the error.
func (s *Scraper) discover(ctx context.Context, start, end time.Time) ([]trialRef, error) {
	dateFrom := start.Format("2006-01-02")
	dateTo := end.Format("2006-01-02")

	var refs []trialRef
	seen := map[string]bool{}
	for pageNum := 1; pageNum <= maxSearchPages; pageNum++ {
		body, err := s.fetcher.Fetch(ctx, searchURL(s.base, dateFrom, dateTo, pageNum))
		if err != nil {
			return refs, fmt.Errorf("search page %d: %w", pageNum, err)
		}
		pageRefs, err := parseSearchPage(s.base, body)
		if err != nil {
			return refs, fmt.Errorf("search page %d: %w", pageNum, err)
		}
		if len(pageRefs) == 0 {
			break
		}
		for _, ref := range pageRefs {
			if seen[ref.EudractNumber] {
				continue
			}
			seen[ref.EudractNumber] = true
			refs = append(refs, ref)
		}
	}
	s.logger.Info("discovery complete", zap.Int("trials", len(refs)),
		zap.String("date_from", dateFrom), zap.String("date_to", dateTo))
	return refs, nil
}

// harvest assembles one trial's payload: the search-result card, every
// protocol page with its extracted document, and the result-set versions.
// The first failed required fetch or extraction fails the whole trial.
func (s *Scraper) harvest(ctx context.Context, ref trialRef) (map[string]any, error) {
	protocols := make([]any, 0, len(ref.ProtocolURLs))
	for _, protoURL := range ref.ProtocolURLs {
		proto, err := s.harvestProtocol(ctx, protoURL)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, proto)
	}

	results := map[string]any{}
	if ref.ResultsURL != "" {
		body, err := s.fetcher.Fetch(ctx, ref.ResultsURL)
		if err != nil {
			return nil, fmt.Errorf("results page: %w", err)
		}
		results, err = parseResultsPage(s.base, body)
		if err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"card":      ref.Card,
		"protocols": protocols,
		"results":   results,
	}, nil
}

func (s *Scraper) harvestProtocol(ctx context.Context, protoURL string) (map[string]any, error) {
	body, err := s.fetcher.Fetch(ctx, protoURL)
	if err != nil {
		return nil, fmt.Errorf("protocol page %s: %w", protoURL, err)
	}
	sections, archiveURL, err := parseProtocolPage(s.base, body)
	if err != nil {
		return nil, err
	}

	proto := map[string]any{"url": protoURL}
	for name, section := range sections {
		proto[name] = section
	}

	if archiveURL != "" {
		archive, err := s.fetcher.Fetch(ctx, archiveURL)
		if err != nil {
			return nil, fmt.Errorf("document archive %s: %w", archiveURL, err)
		}
		text, tables, err := s.extractFn(archive)
		evt := progress.Event{TS: time.Now().UTC(), Stage: progress.StageDocExtracted, URL: archiveURL}
		if err != nil {
			evt.Note = err.Error()
			s.events.Publish(evt)
			return nil, fmt.Errorf("document archive %s: %w", archiveURL, err)
		}
		s.events.Publish(evt)
		proto["document_text"] = text
		proto["document_tables"] = tablesToJSON(tables)
	}
	return proto, nil
}

// tablesToJSON rebuilds tables as plain nested slices so the payload
// round-trips through encoding/json like any other harvested value.
func tablesToJSON(tables []extract.Table) []any {
	out := make([]any, 0, len(tables))
	for _, tbl := range tables {
		rows := make([]any, 0, len(tbl))
		for _, row := range tbl {
			cells := make([]any, 0, len(row))
			for _, cell := range row {
				cells = append(cells, any(cell))
			}
			rows = append(rows, any(cells))
		}
		out = append(out, any(rows))
	}
	return out
}
