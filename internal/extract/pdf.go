package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var errMissingPage = errors.New("page object missing")

// pdfInfoKeys maps Info dictionary entries to metadata keys.
var pdfInfoKeys = map[string]string{
	"Title":    "title",
	"Author":   "author",
	"Subject":  "subject",
	"Keywords": "keywords",
	"Creator":  "creator",
	"Producer": "producer",
}

// PDF extracts the text of every page, 0-indexed. A page that cannot be read
// fails the whole document with a *PageError naming it.
func PDF(content []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("open PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	doc = &Document{
		Format:   FormatPDF,
		Pages:    make([]Page, 0, numPages),
		Metadata: pdfMetadata(r),
	}
	for i := 0; i < numPages; i++ {
		text, err := pdfPageText(r, i)
		if err != nil {
			return nil, &PageError{Page: i, Err: err}
		}
		doc.Pages = append(doc.Pages, Page{Index: i, Text: text})
	}
	return doc, nil
}

func pdfPageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extract text: %v", rec)
		}
	}()
	page := r.Page(i + 1)
	if page.V.IsNull() {
		return "", errMissingPage
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func pdfMetadata(r *pdf.Reader) map[string]string {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return nil
	}
	meta := make(map[string]string)
	for src, dst := range pdfInfoKeys {
		if v := strings.TrimSpace(info.Key(src).Text()); v != "" {
			meta[dst] = v
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
