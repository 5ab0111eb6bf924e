package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/cardforge/cardforge-api/internal/domain"
)

// pdfMagic is the file-type marker every PDF starts with.
var pdfMagic = []byte("%PDF-")

// Page is one ordered page record of the source document.
// Number is 1-indexed.
type Page struct {
	Number int
	Text   string
	Source string
}

// LoadPages parses source bytes into ordered page records. PDF documents
// are detected by their file marker and have their text extracted page by
// page; anything else is treated as UTF-8 text with form-feed page breaks.
// An optional 1-indexed inclusive page range filters the result.
// Returns domain.ErrSource for unreadable or empty input, and for a page
// range that leaves nothing behind.
func LoadPages(source []byte, filename string, pageStart, pageEnd *int) ([]Page, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: document is empty", domain.ErrSource)
	}

	var raw []string
	if bytes.HasPrefix(source, pdfMagic) {
		texts, err := extractPDFPages(source)
		if err != nil {
			return nil, err
		}
		raw = texts
	} else {
		if !utf8.Valid(source) {
			return nil, fmt.Errorf("%w: document is not valid UTF-8 text", domain.ErrSource)
		}
		raw = strings.Split(string(source), "\f")
	}

	pages := make([]Page, 0, len(raw))
	for i, text := range raw {
		number := i + 1
		if pageStart != nil && number < *pageStart {
			continue
		}
		if pageEnd != nil && number > *pageEnd {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{
			Number: number,
			Text:   text,
			Source: fmt.Sprintf("%s, page %d", filename, number),
		})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages with content after filtering", domain.ErrSource)
	}

	return pages, nil
}

// extractPDFPages pulls the text of every PDF page, in document order.
// Pages without extractable text keep their slot so numbering matches the
// document.
func extractPDFPages(source []byte) (texts []string, err error) {
	// The parser panics on some malformed inputs; fold that into the
	// source error instead of killing the worker.
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = fmt.Errorf("%w: parsing PDF: %v", domain.ErrSource, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(source), int64(len(source)))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing PDF: %s", domain.ErrSource, err)
	}

	texts = make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: extracting text from PDF page %d: %s", domain.ErrSource, i, err)
		}
		texts = append(texts, text)
	}

	return texts, nil
}
