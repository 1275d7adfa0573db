// Package binding exposes the existence-check contract for the stored
// association between a platform identity and the campus systems. The
// persistence schema behind it belongs to the account collaborator; the
// gateway only ever asks "is this identity known?".
package binding

import (
	"context"
	"fmt"
	"time"

	"github.com/weixiao/campus-bridge/internal/cache"
)

// KeyPrefix namespaces binding records in the shared cache.
const KeyPrefix = "wechat:user:binding:"

// Record is the minimal projection of a stored binding.
type Record struct {
	OpenID  string    `json:"openid"`
	BoundAt time.Time `json:"boundAt"`
}

// Store answers whether a platform identity has a known binding.
type Store interface {
	IsBound(ctx context.Context, openID string) (bool, error)
}

// CacheStore keeps binding records in the shared cache. Records are
// written by the account collaborator when a user subscribes and completes
// a binding; the gateway reads them for its existence checks.
type CacheStore struct {
	store cache.Cache[Record]
	ttl   time.Duration
}

// NewCacheStore creates a binding store over the shared cache. Records are
// kept for ttl; the collaborator re-registers them on activity.
func NewCacheStore(store cache.Cache[Record], ttl time.Duration) *CacheStore {
	return &CacheStore{
		store: store,
		ttl:   ttl,
	}
}

// IsBound reports whether the identity has a binding record.
func (s *CacheStore) IsBound(ctx context.Context, openID string) (bool, error) {
	if openID == "" {
		return false, nil
	}

	_, found, err := s.store.Get(ctx, KeyPrefix+openID)
	if err != nil {
		return false, fmt.Errorf("binding lookup failed: %w", err)
	}

	return found, nil
}

// Register records a binding for the identity. The gateway itself never
// registers bindings: this is the write path for the account collaborator,
// which shares the distributed cache and records a binding when a user
// completes one.
func (s *CacheStore) Register(ctx context.Context, openID string) error {
	record := Record{
		OpenID:  openID,
		BoundAt: time.Now(),
	}

	if err := s.store.Set(ctx, KeyPrefix+openID, record, s.ttl); err != nil {
		return fmt.Errorf("binding registration failed: %w", err)
	}

	return nil
}
