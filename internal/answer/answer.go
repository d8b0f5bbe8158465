// Package answer pulls the answer text out of raw model completions.
package answer

import (
	"unicode"
	"unicode/utf8"
)

// FallbackMarkers are applied after a template's own output marker.
var FallbackMarkers = []string{"Answer:", "A:"}

// ExtractAfterMarker returns the part of text after the first case-insensitive
// occurrence of marker. If marker is empty or absent, text is returned as is.
func ExtractAfterMarker(text, marker string) string {
	if marker == "" {
		return text
	}
	for i := 0; i < len(text); {
		if end, ok := matchAt(text, i, marker); ok {
			return text[end:]
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return text
}

// Chain applies ExtractAfterMarker for each marker in order.
func Chain(text string, markers ...string) string {
	for _, m := range markers {
		text = ExtractAfterMarker(text, m)
	}
	return text
}

// matchAt reports whether marker matches text starting at byte offset i and
// returns the offset just past the match.
func matchAt(text string, i int, marker string) (int, bool) {
	for _, mr := range marker {
		if i >= len(text) {
			return 0, false
		}
		tr, size := utf8.DecodeRuneInString(text[i:])
		if !equalFold(tr, mr) {
			return 0, false
		}
		i += size
	}
	return i, true
}

func equalFold(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
