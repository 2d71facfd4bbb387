// Package blob stores attachment bytes either in a cloud bucket or on
// local disk when no bucket is configured.
package blob

import (
	"context"
	"io"
	"time"
)

// Store is the destination attachments are written to.
type Store interface {
	// Upload writes the object and returns an opaque locator for it.
	Upload(ctx context.Context, storedName string, r io.Reader, contentType string, metadata map[string]string) (string, error)
	// SignedURL returns a time-limited download URL, or ErrNoSignedURLs
	// when the backend cannot produce one.
	SignedURL(ctx context.Context, storedName string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, storedName string) (bool, error)
	Delete(ctx context.Context, storedName string) (bool, error)
	// Kind names the backend for diagnostics ("gcs" or "local").
	Kind() string
}
