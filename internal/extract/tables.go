package extract

import (
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// Fragments within this vertical distance belong to the same line.
	lineTolerance = 2.0
	// A horizontal gap wider than this starts a new cell within a line.
	cellGap = 14.0
	// A table needs at least this many consecutive multi-cell lines.
	minTableRows = 2
)

// tablesFromFragments reconstructs tables from positioned text fragments.
// Fragments are grouped into lines by Y, lines are split into cells at
// horizontal gaps, and consecutive runs of multi-cell lines become tables.
// Single-cell lines are treated as prose and break any run in progress.
func tablesFromFragments(fragments []pdf.Text) []Table {
	lines := groupLines(fragments)

	var tables []Table
	var current Table
	flush := func() {
		if len(current) >= minTableRows {
			tables = append(tables, current)
		}
		current = nil
	}
	for _, line := range lines {
		cells := splitCells(line)
		if len(cells) >= 2 {
			current = append(current, cells)
			continue
		}
		flush()
	}
	flush()
	return tables
}

// groupLines buckets fragments into lines ordered top to bottom. PDF Y
// coordinates grow upward, so a larger Y means higher on the page.
func groupLines(fragments []pdf.Text) [][]pdf.Text {
	sorted := make([]pdf.Text, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines [][]pdf.Text
	for _, frag := range sorted {
		if frag.S == "" {
			continue
		}
		n := len(lines)
		if n > 0 && lines[n-1][0].Y-frag.Y < lineTolerance {
			lines[n-1] = append(lines[n-1], frag)
			continue
		}
		lines = append(lines, []pdf.Text{frag})
	}
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
	}
	return lines
}

// splitCells merges a line's fragments into cells, starting a new cell
// wherever the horizontal gap to the previous fragment exceeds cellGap.
func splitCells(line []pdf.Text) []string {
	var cells []string
	var cell strings.Builder
	var prevEnd float64
	for i, frag := range line {
		if i > 0 && frag.X-prevEnd > cellGap {
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		}
		cell.WriteString(frag.S)
		prevEnd = frag.X + frag.W
	}
	if cell.Len() > 0 {
		cells = append(cells, strings.TrimSpace(cell.String()))
	}
	return cells
}
