package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet extracts each sheet as a page, in workbook order. Cells are tab
// separated and rows newline separated.
func Spreadsheet(content []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	doc := &Document{Format: FormatSpreadsheet, Metadata: spreadsheetMetadata(f)}
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &PageError{Page: i, Err: fmt.Errorf("sheet %q: %w", sheet, err)}
		}
		var buf strings.Builder
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		doc.Pages = append(doc.Pages, Page{Index: i, Label: sheet, Text: strings.TrimSpace(buf.String())})
	}
	return doc, nil
}

func spreadsheetMetadata(f *excelize.File) map[string]string {
	props, err := f.GetDocProps()
	if err != nil || props == nil {
		return nil
	}
	meta := make(map[string]string)
	if props.Title != "" {
		meta["title"] = props.Title
	}
	if props.Creator != "" {
		meta["author"] = props.Creator
	}
	if props.Subject != "" {
		meta["subject"] = props.Subject
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
