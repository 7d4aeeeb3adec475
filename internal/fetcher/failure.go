package fetcher

import "fmt"

// FetchFailure reports a request that could not be satisfied, either because
// it was non-retryable or because the retry policy was exhausted.
type FetchFailure struct {
	URL        string
	Attempts   int
	StatusCode int
	Retryable  bool
	Err        error
}

// Error implements the error interface.
func (f *FetchFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", f.URL, f.Attempts, f.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): status %d", f.URL, f.Attempts, f.StatusCode)
}

// Unwrap exposes the underlying transport error, if any.
func (f *FetchFailure) Unwrap() error {
	return f.Err
}
