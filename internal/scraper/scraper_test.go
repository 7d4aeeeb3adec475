package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/internal/extract"
)

type fakeFetcher struct {
	responses map[string][]byte
	errs      map[string]error
	calls     []string
	cancel    context.CancelFunc
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, url)
	if f.cancel != nil {
		f.cancel()
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.responses[url]; ok {
		return body, nil
	}
	return []byte("<html><body></body></html>"), nil
}

var window = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

const (
	searchPage1URL = "https://register.example/ctr-search/search?dateFrom=2021-03-01&dateTo=2021-03-01&page=1&query="
	protocolDEURL  = "https://register.example/ctr-search/trial/2021-000001-11/DE"
	protocolFRURL  = "https://register.example/ctr-search/trial/2021-000001-11/FR"
	protocolSEURL  = "https://register.example/ctr-search/trial/2021-000002-22/SE"
	resultsURL     = "https://register.example/ctr-search/trial/2021-000001-11/results"
	archiveURL     = "https://register.example/ctr-search/trial/2021-000001-11/DE?mode=download"
)

func newTestScraper(t *testing.T, fetcher Fetcher) *Scraper {
	t.Helper()
	s, err := New(Config{BaseURL: "https://register.example/"}, fetcher, nil, nil)
	require.NoError(t, err)
	s.extractFn = func([]byte) (string, []extract.Table, error) {
		return "protocol text\n", []extract.Table{{{"Arm", "Subjects"}, {"Placebo", "120"}}}, nil
	}
	return s
}

func happySite() map[string][]byte {
	return map[string][]byte{
		searchPage1URL: []byte(searchPageHTML),
		protocolDEURL:  []byte(protocolPageHTML),
		resultsURL:     []byte(resultsPageHTML),
	}
}

func TestRun_HarvestsDiscoveredTrials(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: happySite()}
	s := newTestScraper(t, fetcher)

	part, err := s.Run(context.Background(), window, window)
	require.NoError(t, err)
	require.Len(t, part.Successes, 2)
	require.Empty(t, part.Errors)

	trial := part.Successes[0]
	card, ok := trial["card"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "2021-000001-11", card["eudract_number"])

	protocols, ok := trial["protocols"].([]any)
	require.True(t, ok)
	require.Len(t, protocols, 2)

	de, ok := protocols[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, protocolDEURL, de["url"])
	require.Equal(t, "protocol text\n", de["document_text"])
	require.NotNil(t, de["A. Protocol Information"])

	// The FR page serves no archive link, so it has sections but no document.
	fr, ok := protocols[1].(map[string]any)
	require.True(t, ok)
	_, hasDoc := fr["document_text"]
	require.False(t, hasDoc)

	results, ok := trial["results"].(map[string]any)
	require.True(t, ok)
	require.Len(t, results, 2)
}

func TestRun_FailedTrialDoesNotAbortOthers(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		responses: happySite(),
		errs:      map[string]error{protocolSEURL: errors.New("retry budget exhausted")},
	}
	s := newTestScraper(t, fetcher)

	part, err := s.Run(context.Background(), window, window)
	require.NoError(t, err)
	require.Len(t, part.Successes, 1)
	require.Len(t, part.Errors, 1)
	require.Equal(t, "2021-000002-22", part.Errors[0].EudractNumber)
	require.Contains(t, part.Errors[0].Reason, "retry budget exhausted")
}

func TestRun_ExtractionFailureFailsTrial(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: happySite()}
	s := newTestScraper(t, fetcher)
	s.extractFn = func([]byte) (string, []extract.Table, error) {
		return "", nil, &extract.ExtractionError{Stage: "archive", Err: errors.New("not a zip")}
	}

	part, err := s.Run(context.Background(), window, window)
	require.NoError(t, err)
	require.Len(t, part.Errors, 1)
	require.Equal(t, "2021-000001-11", part.Errors[0].EudractNumber)
	// The second trial has no document archive, so it still succeeds.
	require.Len(t, part.Successes, 1)
}

func TestRun_EveryTrialInExactlyOnePartitionSide(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		responses: happySite(),
		errs:      map[string]error{resultsURL: errors.New("server error")},
	}
	s := newTestScraper(t, fetcher)

	part, err := s.Run(context.Background(), window, window)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, trial := range part.Successes {
		card := trial["card"].(map[string]any)
		seen[card["eudract_number"].(string)]++
	}
	for _, trialErr := range part.Errors {
		seen[trialErr.EudractNumber]++
	}
	require.Equal(t, map[string]int{"2021-000001-11": 1, "2021-000002-22": 1}, seen)
}

func TestRun_EmptyWindowIsNotAnError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	s := newTestScraper(t, fetcher)

	part, err := s.Run(context.Background(), window, window)
	require.NoError(t, err)
	require.Empty(t, part.Successes)
	require.Empty(t, part.Errors)
}

func TestRun_DiscoveryFailureWithZeroTrials(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		errs: map[string]error{searchPage1URL: errors.New("unreachable")},
	}
	s := newTestScraper(t, fetcher)

	_, err := s.Run(context.Background(), window, window)
	require.Error(t, err)
	require.Contains(t, err.Error(), "discovery")
}

func TestRun_PartialDiscoveryStillHarvests(t *testing.T) {
	t.Parallel()

	page2 := "https://register.example/ctr-search/search?dateFrom=2021-03-01&dateTo=2021-03-01&page=2&query="
	fetcher := &fakeFetcher{
		responses: happySite(),
		errs:      map[string]error{page2: errors.New("server error")},
	}
	s := newTestScraper(t, fetcher)

	part, err := s.Run(context.Background(), window, window)
	require.NoError(t, err)
	require.Len(t, part.Successes, 2)
}

func TestRun_CancellationAbandonsPartition(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{responses: happySite(), cancel: cancel}
	s := newTestScraper(t, fetcher)

	_, err := s.Run(ctx, window, window)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
