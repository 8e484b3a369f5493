package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps backend failures (connection, query, driver errors).
	ErrUnavailable = errors.New("kv: backend unavailable")
)

// Store is the read/write/remove surface the session guard needs from local
// persistent storage. There is no schema versioning and no expiry.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
