package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// clientCacheTTL bounds the client-side caching window for reads. Server
// tracking invalidates stale client copies when another writer updates an
// entry, so this only limits how long an untouched copy is retained.
const clientCacheTTL = time.Minute

// Distributed implements Cache using Valkey with server-assisted
// client-side caching.
// The generic type T represents the value type being cached.
type Distributed[T any] struct {
	client valkey.Client
}

// NewDistributed creates a new Valkey-backed cache with server-assisted client-side caching.
func NewDistributed[T any](valkeyClient valkey.Client) (*Distributed[T], error) {
	return &Distributed[T]{
		client: valkeyClient,
	}, nil
}

// Get retrieves a value from the cache using server-assisted client-side caching.
// Returns the value, whether it was found, and any error.
func (d *Distributed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	// Use DoCache for server-assisted client-side caching
	// The .Cache() method enables client-side caching with server tracking
	cmd := d.client.B().Get().Key(key).Cache()
	result := d.client.DoCache(ctx, cmd, clientCacheTTL)
	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("failed to get cached value: %w", err)
	}

	val, err := result.ToString()
	if err != nil {
		return zero, false, fmt.Errorf("failed to convert cached value to string: %w", err)
	}

	var value T
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return value, true, nil
}

// Set stores a value in the cache with the given TTL.
// The value is JSON-serialized before storage; expiry is enforced by the
// server via SET EX.
func (d *Distributed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	cmd := d.client.B().Set().Key(key).Value(string(data)).ExSeconds(int64(ttl.Seconds())).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cached value: %w", err)
	}
	return nil
}

// Invalidate removes a value from the cache.
func (d *Distributed[T]) Invalidate(ctx context.Context, key string) error {
	cmd := d.client.B().Del().Key(key).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Close releases resources associated with the cache client.
func (d *Distributed[T]) Close() error {
	d.client.Close()
	return nil
}
