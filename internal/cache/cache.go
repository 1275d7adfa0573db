// Package cache provides the shared TTL-aware key/value store that holds
// platform credentials and per-user campus data. Expiry is enforced by the
// cache itself: a Get past the entry's TTL reports absence, which callers
// treat as the signal to refresh.
package cache

import (
	"context"
	"time"
)

// Cache is the interface for TTL-aware cache implementations.
// The generic type T represents the value type being cached.
type Cache[T any] interface {
	// Get retrieves a value from the cache.
	// Returns the value, whether it was found, and any error. An entry past
	// its TTL is reported as not found.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a value in the cache with the given TTL.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
