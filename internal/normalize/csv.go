package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column headers for the three exports.
var (
	CardHeader = []string{
		"eudract_number", "start_date", "sponsor_name", "full_title",
		"version", "soc_term", "classification_code", "term", "level",
		"needs_review", "json",
	}
	ProtocolHeader = []string{"protocol_id", "eudract_number", "url", "json"}
	ResultHeader   = []string{"eudract_number", "version", "url", "json"}
)

// EncodeCards renders the cards table as CSV with a header row.
func (t Tables) EncodeCards() ([]byte, error) {
	return encodeCSV(CardHeader, t.Cards)
}

// EncodeProtocols renders the protocols table as CSV with a header row.
func (t Tables) EncodeProtocols() ([]byte, error) {
	return encodeCSV(ProtocolHeader, t.Protocols)
}

// EncodeResults renders the results table as CSV with a header row.
func (t Tables) EncodeResults() ([]byte, error) {
	return encodeCSV(ResultHeader, t.Results)
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i, len(row), len(header))
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}
