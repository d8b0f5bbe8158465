// Package extract turns document bytes into per-page plain text and document-level metadata.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported input family.
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatSpreadsheet Format = "spreadsheet"
	FormatText        Format = "text"
)

// TextPageIndex is the page index given to plain text, which has no pagination.
const TextPageIndex = 1

// ErrUnsupportedFormat is returned for extensions no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Page is the raw text of one page (or sheet).
type Page struct {
	Index int
	Label string
	Text  string
}

// Document is the extracted content of a file.
type Document struct {
	Format   Format
	Pages    []Page
	Metadata map[string]string
}

// PageError reports a page whose text could not be extracted.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// FormatOf maps a file name to its Format by extension.
// Files without an extension are treated as text.
func FormatOf(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".xlsx":
		return FormatSpreadsheet, nil
	case ".txt", ".md", ".rst", ".csv", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ExtractBytes extracts content of the given format.
func ExtractBytes(content []byte, format Format) (*Document, error) {
	switch format {
	case FormatPDF:
		return PDF(content)
	case FormatSpreadsheet:
		return Spreadsheet(content)
	case FormatText:
		return Text(content), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatSpreadsheet:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}
