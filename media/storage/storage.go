// Package storage is the boundary to the durable byte store behind the
// catalog. The catalog only ever needs put/delete/exists keyed by an opaque
// storage key; anything smarter (thumbnails, CDNs, scanning) lives behind the
// real backend.
package storage

import (
	"context"
	"io"
)

// BlobStore stores raw bytes under opaque keys. Put and Delete are idempotent
// so the upload pipeline and purge can retry safely.
type BlobStore interface {
	// Put writes the full contents of r under key, replacing any previous
	// object, and returns the public URL of the stored object.
	Put(ctx context.Context, key string, r io.Reader) (string, error)

	// Delete removes the object under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public address for key without touching the store.
	URL(key string) string
}
