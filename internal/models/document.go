package models

import "time"

// Document is the catalog record of an ingested document.
type Document struct {
	ID          string            `json:"id"`
	Collection  string            `json:"collection"`
	Title       string            `json:"title,omitempty"`
	Source      string            `json:"source,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Pages       int               `json:"pages"`
	Chunks      int               `json:"chunks"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// PageCount returns the number of distinct pages among chunks.
func PageCount(chunks []DocumentChunk) int {
	seen := make(map[int]struct{})
	for _, c := range chunks {
		seen[c.Page] = struct{}{}
	}
	return len(seen)
}
