package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSKV stores keys in a JetStream key-value bucket.
type NATSKV struct {
	kv jetstream.KeyValue
}

// NewNATSKV creates or binds the bucket on an existing connection.
func NewNATSKV(ctx context.Context, nc *nats.Conn, bucket string) (*NATSKV, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Presentation state shared by operator and presenter windows",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket: %w", err)
	}

	log.Info().Str("bucket", bucket).Msg("using JetStream key-value bucket")
	return &NATSKV{kv: kv}, nil
}

func (n *NATSKV) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

func (n *NATSKV) Set(ctx context.Context, key, value string) error {
	if _, err := n.kv.Put(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (n *NATSKV) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
