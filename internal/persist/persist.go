// Package persist stores durable snapshots of conversation state behind an
// asynchronous key/value interface, with write coalescing so streaming does
// not turn into one disk write per character.
package persist

import (
	"context"
	"errors"
)

// ErrNotFound indicates the key has never been written.
var ErrNotFound = errors.New("key not found")

// Adapter is the durable key/value boundary. Get returns ErrNotFound for a
// key that was never set or has been removed.
type Adapter interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
