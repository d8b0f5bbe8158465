package vectorstore

import (
	"errors"
	"fmt"
)

// ErrInvalidBatch is wrapped by VectorStoreError when a chunk batch fails validation.
var ErrInvalidBatch = errors.New("invalid chunk batch")

// CollectionNotFoundError is returned when reading from a collection that does not exist.
type CollectionNotFoundError struct {
	Name string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection %q not found", e.Name)
}

// VectorStoreError reports a failed vector store operation. Op is one of
// "add", "search" or "delete".
type VectorStoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s in %q: %v", e.Op, e.Collection, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }
