// Package snapshot materializes one run's outcome as a JSON artifact and
// names the run's export files deterministically from the date window and
// run timestamp.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/scraper"
)

// timestampLayout names files; RunStartDatetime in the metadata stays RFC3339.
const timestampLayout = "2006-01-02-15-04-05"

// Metadata identifies the run that produced a snapshot.
type Metadata struct {
	QueryStartDate   string `json:"query_start_date"`
	QueryEndDate     string `json:"query_end_date"`
	RunStartDatetime string `json:"run_start_datetime"`
}

// Snapshot is the persisted form of one run: its window, its errors, and
// every successfully harvested trial payload.
type Snapshot struct {
	Metadata  Metadata             `json:"metadata"`
	Errors    []scraper.TrialError `json:"errors"`
	Successes []map[string]any     `json:"successes"`

	runStart time.Time
}

// New builds a snapshot for the window [start, end] harvested at runStart.
// Empty partition sides serialize as empty arrays, not null.
func New(start, end, runStart time.Time, part *scraper.Partition) Snapshot {
	snap := Snapshot{
		Metadata: Metadata{
			QueryStartDate:   start.Format("2006-01-02"),
			QueryEndDate:     end.Format("2006-01-02"),
			RunStartDatetime: runStart.UTC().Format(time.RFC3339),
		},
		Errors:    []scraper.TrialError{},
		Successes: []map[string]any{},
		runStart:  runStart,
	}
	if part != nil {
		if part.Errors != nil {
			snap.Errors = part.Errors
		}
		if part.Successes != nil {
			snap.Successes = part.Successes
		}
	}
	return snap
}

// Filename is the snapshot's JSON artifact name: <start>_<end>_<run-ts>.json.
func (s Snapshot) Filename() string {
	return fmt.Sprintf("%s_%s_%s.json", s.Metadata.QueryStartDate, s.Metadata.QueryEndDate, s.runStart.UTC().Format(timestampLayout))
}

// TableFilenames returns the names for the three CSV exports of this run.
func (s Snapshot) TableFilenames() (cards, protocols, results string) {
	suffix := fmt.Sprintf("%s_%s_%s.csv", s.Metadata.QueryStartDate, s.Metadata.QueryEndDate, s.runStart.UTC().Format(timestampLayout))
	return "trial_info_cards_" + suffix, "trial_protocols_" + suffix, "trial_results_" + suffix
}

// Encode renders the snapshot as indented JSON.
func (s Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// WriteFile persists the snapshot under dir and returns the full path.
func (s Snapshot) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	data, err := s.Encode()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, s.Filename())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
