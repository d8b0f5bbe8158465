package chunker

import (
	"regexp"
	"strings"

	"github.com/blevesearch/segment"
)

// level is a kind of text boundary, coarsest first.
type level int

const (
	levelParagraph level = iota
	levelLine
	levelSentence
	levelWord
	levelRune
)

// span is a byte range of the source text. boundary is the kind of break that precedes it.
type span struct {
	start, end int
	boundary   level
}

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n\s*`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)
)

// pieces decomposes text into spans no longer than Max runes, using the
// coarsest boundary that achieves it for each region.
func (c *Chunker) pieces(text string) ([]span, error) {
	var out []span
	if err := c.decompose(text, span{0, len(text), levelParagraph}, levelParagraph, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Chunker) decompose(text string, s span, lvl level, out *[]span) error {
	if runeLen(text[s.start:s.end]) <= c.capacity.Max {
		*out = append(*out, s)
		return nil
	}
	parts, err := c.splitAt(text, s, lvl)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if lvl == levelRune {
			*out = append(*out, p)
			continue
		}
		if err := c.decompose(text, p, lvl+1, out); err != nil {
			return err
		}
	}
	return nil
}

// splitAt partitions s at boundaries of kind lvl. Each part keeps its trailing
// separator; the first part inherits the boundary of s.
func (c *Chunker) splitAt(text string, s span, lvl level) ([]span, error) {
	var cuts []int
	region := text[s.start:s.end]
	switch lvl {
	case levelParagraph:
		for _, m := range paragraphBreak.FindAllStringIndex(region, -1) {
			cuts = append(cuts, s.start+m[1])
		}
	case levelLine:
		for i, r := range region {
			if r == '\n' {
				cuts = append(cuts, s.start+i+1)
			}
		}
	case levelSentence:
		for _, m := range sentenceEnd.FindAllStringIndex(region, -1) {
			cuts = append(cuts, s.start+m[1])
		}
	case levelWord:
		wc, err := wordCuts(region)
		if err != nil {
			return nil, err
		}
		for _, cut := range wc {
			cuts = append(cuts, s.start+cut)
		}
	case levelRune:
		n := 0
		for i := range region {
			if n > 0 && n%c.capacity.Max == 0 {
				cuts = append(cuts, s.start+i)
			}
			n++
		}
	}

	parts := make([]span, 0, len(cuts)+1)
	prev := s.start
	for _, cut := range cuts {
		if cut <= prev || cut >= s.end {
			continue
		}
		parts = append(parts, span{prev, cut, lvl})
		prev = cut
	}
	parts = append(parts, span{prev, s.end, lvl})
	parts[0].boundary = s.boundary
	return parts, nil
}

// wordCuts returns byte offsets in text where a new word may start, using
// Unicode word segmentation. Breaks fall after whitespace, and around every
// ideographic or kana segment since those scripts do not separate words with spaces.
func wordCuts(text string) ([]int, error) {
	seg := segment.NewWordSegmenterDirect([]byte(text))
	var cuts []int
	pos := 0
	prevSpace, prevIdeo := false, false
	for seg.Segment() {
		b := seg.Bytes()
		isSpace := strings.TrimSpace(string(b)) == ""
		ideo := seg.Type() == segment.Ideo || seg.Type() == segment.Kana
		if pos > 0 && !isSpace && (prevSpace || ideo || prevIdeo) {
			cuts = append(cuts, pos)
		}
		pos += len(b)
		prevSpace, prevIdeo = isSpace, ideo
	}
	if err := seg.Err(); err != nil {
		return nil, err
	}
	return cuts, nil
}
