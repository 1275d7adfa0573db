package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// Memory is an in-memory cache implementation using otter.
// The generic type T represents the value type being cached.
type Memory[T any] struct {
	cache   *otter.Cache[string, memoryEntry[T]]
	counter *stats.Counter
}

// NewMemory creates a new in-memory cache with the specified max size.
func NewMemory[T any](maxSize int) (*Memory[T], error) {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, memoryEntry[T]]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
		// each entry expires at its own deadline, set from the TTL the
		// caller passed to Set; a rewrite resets the deadline
		ExpiryCalculator: otter.ExpiryWritingFunc(func(entry otter.Entry[string, memoryEntry[T]]) time.Duration {
			return time.Until(entry.Value.expiresAt)
		}),
	})

	return &Memory[T]{
		cache:   cache,
		counter: counter,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the value, whether it was found, and any error.
func (m *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	entry, ok := m.cache.GetEntry(key)
	if !ok {
		return zero, false, nil
	}

	// a lapsed entry that eviction hasn't reached yet is still a miss,
	// and is removed so the next writer starts clean
	if time.Now().After(entry.Value.expiresAt) {
		m.cache.Invalidate(key)
		return zero, false, nil
	}

	return entry.Value.value, true, nil
}

// Set stores a value in the cache with the given TTL.
func (m *Memory[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	m.cache.Set(key, memoryEntry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Invalidate removes a value from the cache.
func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Close releases any resources held by the cache.
func (m *Memory[T]) Close() error {
	return nil
}
