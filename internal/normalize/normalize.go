// Package normalize flattens harvested trial payloads into three relational
// tables: trial cards, protocols, and result sets. Rows keep the source JSON
// in an audit column next to the extracted scalar fields.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tables holds the three output tables as ordered rows without headers.
type Tables struct {
	Cards     [][]string
	Protocols [][]string
	Results   [][]string
}

// RowError reports a single row or version that could not be normalized.
// The rest of the batch is unaffected.
type RowError struct {
	EudractNumber string
	Table         string
	Reason        string
}

func (e RowError) Error() string {
	return fmt.Sprintf("normalize %s for %s: %s", e.Table, e.EudractNumber, e.Reason)
}

// dateLayouts covers the formats the register has been seen to emit.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2 January 2006",
	"January 2, 2006",
}

var diseaseFields = []string{"version", "soc_term", "classification_code", "term", "level"}

// Normalize converts the successes partition into the three tables.
// Empty input yields empty tables and no errors. Field-level problems are
// recovered per the fallback rules; structural problems surface as RowErrors
// scoped to the affected row or version.
func Normalize(successes []map[string]any) (Tables, []RowError) {
	var tables Tables
	var rowErrs []RowError

	for _, trial := range successes {
		card, _ := trial["card"].(map[string]any)
		eudract := stringField(card, "eudract_number")
		if card == nil || eudract == "" {
			rowErrs = append(rowErrs, RowError{
				EudractNumber: eudract,
				Table:         "cards",
				Reason:        "trial payload has no card with an eudract number",
			})
			continue
		}
		protocols, _ := trial["protocols"].([]any)

		cardRow, cardErr := normalizeCard(card, eudract, protocols)
		if cardErr != nil {
			rowErrs = append(rowErrs, *cardErr)
		} else {
			tables.Cards = append(tables.Cards, cardRow)
		}

		protoRows, protoErrs := normalizeProtocols(eudract, protocols)
		tables.Protocols = append(tables.Protocols, protoRows...)
		rowErrs = append(rowErrs, protoErrs...)

		resultRows, resultErrs := normalizeResults(eudract, trial["results"])
		tables.Results = append(tables.Results, resultRows...)
		rowErrs = append(rowErrs, resultErrs...)
	}
	return tables, rowErrs
}

func normalizeCard(card map[string]any, eudract string, protocols []any) ([]string, *RowError) {
	disease, _ := card["disease"].(map[string]any)
	if disease == nil {
		return nil, &RowError{EudractNumber: eudract, Table: "cards", Reason: "missing disease classification"}
	}
	diseaseCells := make([]string, 0, len(diseaseFields))
	for _, field := range diseaseFields {
		if _, ok := disease[field]; !ok {
			return nil, &RowError{
				EudractNumber: eudract,
				Table:         "cards",
				Reason:        fmt.Sprintf("disease classification missing %q", field),
			}
		}
		diseaseCells = append(diseaseCells, stringField(disease, field))
	}

	title, needsReview := resolveTitle(stringField(card, "full_title"), protocols)

	row := []string{
		eudract,
		parseDate(stringField(card, "start_date")),
		stringField(card, "sponsor_name"),
		title,
	}
	row = append(row, diseaseCells...)
	row = append(row, boolCell(needsReview), auditJSON(card))
	return row, nil
}

func normalizeProtocols(eudract string, protocols []any) ([][]string, []RowError) {
	var rows [][]string
	var rowErrs []RowError
	for i, raw := range protocols {
		proto, _ := raw.(map[string]any)
		u := stringField(proto, "url")
		if u == "" {
			rowErrs = append(rowErrs, RowError{
				EudractNumber: eudract,
				Table:         "protocols",
				Reason:        fmt.Sprintf("protocol %d has no url", i),
			})
			continue
		}
		rows = append(rows, []string{protocolID(u), eudract, u, auditJSON(proto)})
	}
	return rows, rowErrs
}

func normalizeResults(eudract string, raw any) ([][]string, []RowError) {
	versions, _ := raw.(map[string]any)
	if len(versions) == 0 {
		// No results for a trial is normal.
		return nil, nil
	}
	labels := make([]string, 0, len(versions))
	for label := range versions {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var rows [][]string
	var rowErrs []RowError
	for _, label := range labels {
		payload, _ := versions[label].(map[string]any)
		summary, _ := payload["summary"].(map[string]any)
		u := stringField(summary, "url")
		if u == "" {
			rowErrs = append(rowErrs, RowError{
				EudractNumber: eudract,
				Table:         "results",
				Reason:        fmt.Sprintf("version %q has no summary url", label),
			})
			continue
		}
		rows = append(rows, []string{eudract, label, u, auditJSON(payload)})
	}
	return rows, rowErrs
}

// resolveTitle applies the truncated-title fallback: a title ending in an
// ellipsis is replaced from the first protocol's "Full title of the trial"
// field. When that source is absent the truncated title is kept and the row
// is flagged for review instead of failing.
func resolveTitle(title string, protocols []any) (string, bool) {
	if !strings.HasSuffix(title, "...") && !strings.HasSuffix(title, "…") {
		return title, false
	}
	if full := fullTitleFromProtocols(protocols); full != "" {
		return full, false
	}
	return title, true
}

func fullTitleFromProtocols(protocols []any) string {
	if len(protocols) == 0 {
		return ""
	}
	first, _ := protocols[0].(map[string]any)
	info, _ := first["A. Protocol Information"].(map[string]any)
	values, _ := info["Full title of the trial"].([]any)
	if len(values) == 0 {
		return ""
	}
	full, _ := values[0].(string)
	return strings.TrimSpace(full)
}

// protocolID joins the last two path segments of the document URL. The pair
// is unique per trial because each protocol page carries its own country or
// version suffix.
func protocolID(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) >= 2 {
		return segments[len(segments)-2] + "-" + segments[len(segments)-1]
	}
	return trimmed
}

// parseDate tries the known register layouts and yields an ISO date, or an
// empty cell when nothing matches.
func parseDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func boolCell(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// auditJSON renders the raw object for the audit column. Map keys marshal
// in sorted order, which keeps repeated runs byte-identical.
func auditJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
