// Package blobstore provides whole-object storage for the token collection
// document and uploaded media.
//
// Backends expose plain fetch/overwrite semantics: every Put replaces the
// object identified by its key, there is no partial update and no
// compare-and-swap. Callers that need write coordination must provide it
// themselves.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists under the given key.
// Backend failures (network, permission) are returned as distinct errors.
var ErrNotFound = errors.New("blobstore: object not found")

// Store reads and writes named byte blobs.
type Store interface {
	// Get returns the full contents of the object stored under key.
	// Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the object stored under key with data.
	Put(ctx context.Context, key string, data []byte) error
}
