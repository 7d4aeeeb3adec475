// Package extract pulls text and tables out of protocol document archives.
// An archive is a zip blob whose first entry is a PDF; the extractor returns
// the concatenated page text and every table found, in page order.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Table is one extracted table as rows of cells.
type Table [][]string

// ExtractionError reports a failure to open or read an archive's document.
type ExtractionError struct {
	Stage string // "archive", "entry", "document"
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// document is a page-addressable view over the archive's first entry.
// The PDF reader sits behind this seam so page-walking logic is testable
// without binary fixtures.
type document interface {
	pageCount() int
	page(n int) (page, error)
}

type page interface {
	text() (string, error)
	tables() []Table
}

// Extract opens the archive in memory, takes its first entry in listing
// order, and walks the entry as a PDF. Page text is accumulated
// newline-terminated, pages without text are skipped, and tables are
// collected flat in page order. A readable document with no content yields
// ("", nil, nil); structural failures yield *ExtractionError.
func Extract(archive []byte) (string, []Table, error) {
	entry, err := firstEntry(archive)
	if err != nil {
		return "", nil, err
	}
	doc, err := openPDF(entry)
	if err != nil {
		return "", nil, err
	}
	return readDocument(doc)
}

// firstEntry unzips the archive and returns the bytes of its first file.
func firstEntry(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, &ExtractionError{Stage: "archive", Err: err}
	}
	if len(zr.File) == 0 {
		return nil, &ExtractionError{Stage: "archive", Err: fmt.Errorf("archive contains no entries")}
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, &ExtractionError{Stage: "entry", Err: fmt.Errorf("open %q: %w", zr.File[0].Name, err)}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &ExtractionError{Stage: "entry", Err: fmt.Errorf("read %q: %w", zr.File[0].Name, err)}
	}
	return data, nil
}

func readDocument(doc document) (string, []Table, error) {
	var sb strings.Builder
	var tables []Table
	for n := 1; n <= doc.pageCount(); n++ {
		p, err := doc.page(n)
		if err != nil {
			return "", nil, &ExtractionError{Stage: "document", Err: fmt.Errorf("page %d: %w", n, err)}
		}
		if p == nil {
			continue
		}
		txt, err := p.text()
		if err != nil {
			return "", nil, &ExtractionError{Stage: "document", Err: fmt.Errorf("page %d text: %w", n, err)}
		}
		if strings.TrimSpace(txt) != "" {
			sb.WriteString(txt)
			if !strings.HasSuffix(txt, "\n") {
				sb.WriteString("\n")
			}
		}
		tables = append(tables, p.tables()...)
	}
	return sb.String(), tables, nil
}

// pdfDocument adapts the PDF reader to the document seam.
type pdfDocument struct {
	reader *pdf.Reader
}

// openPDF parses the entry as a PDF. The underlying reader panics on some
// malformed inputs, so parse failures of either kind surface as the same
// *ExtractionError.
func openPDF(data []byte) (doc document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &ExtractionError{Stage: "entry", Err: fmt.Errorf("parse pdf: %v", r)}
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Stage: "entry", Err: fmt.Errorf("parse pdf: %w", err)}
	}
	return &pdfDocument{reader: reader}, nil
}

func (d *pdfDocument) pageCount() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) page(n int) (page, error) {
	p := d.reader.Page(n)
	if p.V.IsNull() {
		return nil, nil
	}
	return &pdfPage{page: p}, nil
}

type pdfPage struct {
	page pdf.Page
}

func (p *pdfPage) text() (txt string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract text: %v", r)
		}
	}()
	return p.page.GetPlainText(nil)
}

func (p *pdfPage) tables() (tables []Table) {
	defer func() {
		// A page whose content stream cannot be decoded contributes no
		// tables; its text already went through the same guard.
		if recover() != nil {
			tables = nil
		}
	}()
	return tablesFromFragments(p.page.Content().Text)
}
