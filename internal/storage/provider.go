// Package storage defines the blob storage abstraction behind the archive.
// This keeps the archive independent of a specific backend (local filesystem,
// Google Cloud Storage, or memory for tests).
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by GetObject when no object exists at the path.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore reads and writes opaque objects addressed by slash-separated paths.
type BlobStore interface {
	// Init prepares the backend for use. It is called once before the first
	// read or write.
	Init(ctx context.Context) error
	// PutObject writes data at path, creating any intermediate structure, and
	// returns a URI describing where it landed.
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	// GetObject returns the bytes stored at path or ErrObjectNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
