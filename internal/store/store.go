package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable wraps every backend failure.
var ErrUnavailable = errors.New("store unavailable")

// PersistentStore is a small byte-oriented key-value store.
// Get returns nil, nil when the key is absent.
type PersistentStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: failed to %s %s: %v", ErrUnavailable, op, key, err)
}
