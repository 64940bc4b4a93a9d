// Package keystore provides the encrypted key-value store backing the cache
// layer.
//
// Values are opaque encrypted blobs keyed by string. Entity families use
// disjoint key namespaces, so the store only has to be safe for interleaved
// access, not coordinated access: within one family the partitioned cache
// store is the sole writer of its own keys.
//
// Two implementations are provided: a SQLite-backed store with AES-256-GCM
// sealing for production, and an in-memory store for tests.
package keystore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("keystore: key not found")

// KV is the encrypted key-value store contract consumed by the cache layer.
//
// Implementations must tolerate arbitrary string keys and interleaved
// reads/writes from independent entity families.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key has a value.
	Exists(ctx context.Context, key string) (bool, error)
}
