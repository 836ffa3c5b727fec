// Package objectstore is the only bulk-data channel between pipeline
// stages. Messages on the broker carry identifiers; the bytes they name
// always live here, at a key that is a deterministic function of those
// identifiers (see internal/objectkeys).
package objectstore

import (
	"context"
	"io"
)

// Adapter is the narrow contract every worker uses to move bytes in and
// out of the object store. The stitcher additionally relies on List.
type Adapter interface {
	// Put stores data at the given key, overwriting any existing object.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves the object at the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at the given key, if present.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the adapter.
	Close() error
}
