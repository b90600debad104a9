package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	natsclient "github.com/capitalize-ai/conversation-core/internal/nats"
)

const kvBucket = "chat-history"

// KVAdapter stores snapshots in a NATS JetStream key/value bucket, for
// deployments where history should survive the local machine.
type KVAdapter struct {
	kv jetstream.KeyValue
}

// NewKV binds (creating if needed) the snapshot bucket on the given client.
func NewKV(ctx context.Context, client *natsclient.Client) (*KVAdapter, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, kvBucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      kvBucket,
			Description: "Durable conversation snapshots",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind KV bucket: %w", err)
	}

	return &KVAdapter{kv: kv}, nil
}

// Get returns the stored value or ErrNotFound.
func (a *KVAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := a.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return entry.Value(), nil
}

// Set writes the value.
func (a *KVAdapter) Set(ctx context.Context, key string, value []byte) error {
	if _, err := a.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// Remove deletes a key.
func (a *KVAdapter) Remove(ctx context.Context, key string) error {
	if err := a.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}
