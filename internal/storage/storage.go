// Package storage defines the blob store used for uploaded site assets.
// Implementations live in the local, memory and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when nothing is stored at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore persists opaque objects under slash-separated paths.
type BlobStore interface {
	// PutObject writes the reader's content to path and returns a backend-specific URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the content stored at path or ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
