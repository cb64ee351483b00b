// Package handlestore persists submitted job handles in a NATS key-value
// bucket so polling can resume after a restart.
package handlestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/core"
	"github.com/nats-io/nats.go"
)

// ErrNotFound is returned by Load for unknown keys.
var ErrNotFound = errors.New("job handle not found")

// NatsHandleStore implements core.HandleStore on a JetStream KV bucket.
type NatsHandleStore struct {
	bucket string
	kv     nats.KeyValue
}

// New binds to bucketName, creating it when missing. Entries older than ttl
// are dropped by the server; zero keeps them forever.
func New(jetstreamContext nats.JetStreamContext, bucketName string, ttl time.Duration) (*NatsHandleStore, error) {
	kv, err := jetstreamContext.KeyValue(bucketName)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucketName,
			Description: "Pending asynchronous job handles.",
			TTL:         ttl,
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to bind key-value bucket '%s': %w", bucketName, err)
	}

	return &NatsHandleStore{bucket: bucketName, kv: kv}, nil
}

// Save stores entry under key, replacing any previous value.
func (s *NatsHandleStore) Save(_ context.Context, key string, entry core.PendingJob) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal handle '%s': %w", key, err)
	}

	_, err = s.kv.Put(key, data)
	if err != nil {
		return fmt.Errorf("failed to put handle '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// Load returns the entry stored under key.
func (s *NatsHandleStore) Load(_ context.Context, key string) (core.PendingJob, error) {
	kvEntry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return core.PendingJob{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return core.PendingJob{}, fmt.Errorf("failed to get handle '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	var entry core.PendingJob

	err = json.Unmarshal(kvEntry.Value(), &entry)
	if err != nil {
		return core.PendingJob{}, fmt.Errorf("failed to unmarshal handle '%s': %w", key, err)
	}

	return entry, nil
}

// Delete forgets key. Deleting an unknown key is not an error.
func (s *NatsHandleStore) Delete(_ context.Context, key string) error {
	err := s.kv.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete handle '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// Pending lists every stored entry.
func (s *NatsHandleStore) Pending(ctx context.Context) ([]core.PendingJob, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list handles in bucket '%s': %w", s.bucket, err)
	}

	entries := make([]core.PendingJob, 0, len(keys))

	for _, key := range keys {
		entry, loadErr := s.Load(ctx, key)
		if errors.Is(loadErr, ErrNotFound) {
			continue
		}

		if loadErr != nil {
			return nil, loadErr
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
