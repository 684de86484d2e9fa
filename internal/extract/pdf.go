package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable is returned when a document cannot be opened or decoded at
// all. Per-page extraction failures do not produce this error; they yield an
// empty string for the affected page instead.
var ErrUnreadable = errors.New("unreadable document")

// Document is the result of extracting one PDF. Pages holds the plain text
// of each page in document order (index 0 is page 1). FullText is the page
// texts joined with a blank line.
type Document struct {
	Filename string
	Pages    []string
	FullText string
}

// PageCount returns the number of extracted pages.
func (d Document) PageCount() int {
	return len(d.Pages)
}

// Extract decodes a PDF from raw bytes and returns its per-page text.
// A document that cannot be parsed fails as a whole with ErrUnreadable;
// there is no partial recovery. A page whose text cannot be decoded
// contributes an empty string rather than failing the document.
func Extract(filename string, data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%w: empty input", ErrUnreadable)
	}

	reader, err := open(data)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	var full strings.Builder

	for i := 1; i <= numPages; i++ {
		text := pageText(reader, i)
		pages = append(pages, text)
		if i > 1 {
			full.WriteString("\n\n")
		}
		full.WriteString(text)
	}

	return Document{
		Filename: filename,
		Pages:    pages,
		FullText: full.String(),
	}, nil
}

// open parses the document structure. The pdf package panics on some
// malformed inputs instead of returning an error, so the panic is converted
// here to keep the whole-document failure contract.
func open(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("parsing document: %v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pageText extracts plain text from a single page, swallowing page-level
// failures (including panics from malformed content streams deep inside the
// pdf package) so one bad page cannot reject the whole document.
func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}

	content, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return content
}
