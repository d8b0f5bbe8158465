package extract

import (
	"strings"
	"unicode/utf8"
)

// Text wraps plain text as a single page. Invalid UTF-8 sequences are replaced
// with the replacement character.
func Text(content []byte) *Document {
	return &Document{
		Format: FormatText,
		Pages:  []Page{{Index: TextPageIndex, Text: validUTF8(content)}},
	}
}

func validUTF8(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "\ufffd")
}
