package scraper

// TrialError records one trial that could not be harvested.
type TrialError struct {
	EudractNumber string `json:"eudract_number"`
	Reason        string `json:"reason"`
}

// Partition is the exhaustive split of all attempted trials for one run.
// A trial appears in exactly one of the two sides.
type Partition struct {
	Successes []map[string]any `json:"successes"`
	Errors    []TrialError     `json:"errors"`
}
