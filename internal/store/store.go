// Package store persists the small amount of state that outlives a process:
// user settings, the selected language and the panel position.
//
// Values are msgpack-encoded under flat string keys. [Badger] is used on
// disk; [Memory] keeps everything in the process and backs tests and
// deployments that configure no data directory.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("store: not found")

// Well-known keys.
const (
	KeySettings = "settings"
	KeyPanel    = "panel"
	KeyLanguage = "language"
)

// Store is a byte-oriented key-value store.
type Store interface {
	// Get returns the value for key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}

// Load decodes the value under key into a T. ok is false if the key is
// missing.
func Load[T any](ctx context.Context, s Store, key string) (v T, ok bool, err error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("store: load %q: %w", key, err)
	}
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return v, true, nil
}

// Save encodes v and stores it under key.
func Save[T any](ctx context.Context, s Store, key string, v T) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	if err := s.Set(ctx, key, data); err != nil {
		return fmt.Errorf("store: save %q: %w", key, err)
	}
	return nil
}
