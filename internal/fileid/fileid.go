// Package fileid provides a deterministic document ID from a file path for watched files.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes file ids so they never collide with other UUIDv5 uses.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/documaster/file"))

// FileDocID returns a stable document ID for the given absolute path: the
// UUIDv5 of the cleaned path. Same path always yields the same ID, so
// re-indexing and deletion by path address the same document.
func FileDocID(absolutePath string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(absolutePath))).String()
}
