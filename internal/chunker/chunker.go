// Package chunker splits page text into bounded-size fragments, breaking at the
// coarsest semantic boundary (paragraph, line, sentence, word) that keeps every
// fragment within capacity.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidCapacity is returned for a capacity with max <= 0 or min > max.
	ErrInvalidCapacity = errors.New("invalid chunk capacity")
	// ErrInvalidEncoding is wrapped by ChunkingError when text is not valid UTF-8.
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")
)

// ChunkingError reports text that could not be segmented.
type ChunkingError struct {
	Err error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking failed: %v", e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// Capacity bounds fragment length in runes. Fragments never exceed Max; once a
// fragment reaches Min it is closed at the next paragraph break.
type Capacity struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Fixed returns a capacity where every fragment is packed up to n runes.
func Fixed(n int) Capacity {
	return Capacity{Min: n, Max: n}
}

// Range returns the closed capacity range [min, max].
func Range(min, max int) Capacity {
	return Capacity{Min: min, Max: max}
}

// Validate returns ErrInvalidCapacity unless 0 <= Min <= Max and Max > 0.
func (c Capacity) Validate() error {
	if c.Max <= 0 || c.Min < 0 || c.Min > c.Max {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidCapacity, c.Min, c.Max)
	}
	return nil
}

func (c Capacity) String() string {
	if c.Min == c.Max {
		return fmt.Sprintf("%d", c.Max)
	}
	return fmt.Sprintf("%d..%d", c.Min, c.Max)
}

// Chunker splits text by capacity. It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	capacity Capacity
}

// New returns a Chunker for capacity.
func New(capacity Capacity) (*Chunker, error) {
	if err := capacity.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{capacity: capacity}, nil
}

// Capacity returns the configured capacity.
func (c *Chunker) Capacity() Capacity {
	return c.capacity
}

// Split validates and segments text, returning a lazy sequence of trimmed,
// non-empty fragments. The sequence may be ranged over any number of times and
// always yields the same fragments.
func (c *Chunker) Split(text string) (iter.Seq[string], error) {
	if !utf8.ValidString(text) {
		return nil, &ChunkingError{Err: ErrInvalidEncoding}
	}
	pieces, err := c.pieces(text)
	if err != nil {
		return nil, &ChunkingError{Err: err}
	}
	return func(yield func(string) bool) {
		c.pack(text, pieces, yield)
	}, nil
}

// SplitAll collects Split into a slice.
func (c *Chunker) SplitAll(text string) ([]string, error) {
	seq, err := c.Split(text)
	if err != nil {
		return nil, err
	}
	var out []string
	for frag := range seq {
		out = append(out, frag)
	}
	return out, nil
}

// pack greedily merges consecutive pieces into fragments of at most Max runes.
func (c *Chunker) pack(text string, pieces []span, yield func(string) bool) {
	start, end := -1, 0
	emit := func() bool {
		if start < 0 {
			return true
		}
		frag := strings.TrimSpace(text[start:end])
		start = -1
		if frag == "" {
			return true
		}
		return yield(frag)
	}
	for _, p := range pieces {
		if start >= 0 {
			grown := runeLen(strings.TrimSpace(text[start:p.end]))
			current := runeLen(strings.TrimSpace(text[start:end]))
			if grown > c.capacity.Max || (p.boundary == levelParagraph && current > 0 && current >= c.capacity.Min) {
				if !emit() {
					return
				}
			}
		}
		if start < 0 {
			start = p.start
		}
		end = p.end
	}
	emit()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
