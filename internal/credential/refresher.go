// Package credential manages the platform-issued access token and JS-API
// ticket: refreshing them ahead of expiry, caching them with a safety
// margin, and signing page URLs for client-side widgets.
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/weixiao/campus-bridge/internal/cache"
	"github.com/weixiao/campus-bridge/internal/wechat"
)

// Cache keys for the platform credentials. One logical instance per
// deployment, not per user.
const (
	AccessTokenKey = "wechat:access_token"
	TicketKey      = "wechat:jsapi_ticket"
)

// GrantFn obtains a fresh, matched access token / ticket pair from the
// platform. Implemented by wechat.Client.GrantTicket.
type GrantFn func(ctx context.Context) (wechat.Credentials, error)

// Refresher obtains fresh platform credentials and writes them into the
// cache. It is the only writer of the access token and ticket entries.
//
// Refresher performs no coordination between concurrent callers: a refresh
// is idempotent from the platform's point of view (each grant yields a
// newer, still-valid pair), so duplicate in-flight refreshes are tolerated
// and the last write wins. Failed refreshes are reported to the caller and
// leave the previously cached values untouched; retry policy belongs to
// the caller.
type Refresher struct {
	grant  GrantFn
	store  cache.Cache[string]
	margin time.Duration
}

func NewRefresher(grant GrantFn, store cache.Cache[string], margin time.Duration) *Refresher {
	return &Refresher{
		grant:  grant,
		store:  store,
		margin: margin,
	}
}

// Refresh obtains a fresh credential pair and caches it. The cache TTL is
// the platform-advertised lifetime minus the configured margin, so the
// entry always lapses (forcing a refresh) before the platform would reject
// the credential.
func (r *Refresher) Refresh(ctx context.Context) (wechat.Credentials, error) {
	creds, err := r.grant(ctx)
	if err != nil {
		return wechat.Credentials{}, fmt.Errorf("credential refresh failed: %w", err)
	}

	lifetime := time.Duration(creds.ExpiresIn) * time.Second
	ttl := lifetime - r.margin
	if ttl <= 0 {
		// a margin at or above the advertised lifetime is a configuration
		// problem; halve the lifetime rather than caching nothing
		log.Warn().
			Dur("lifetime", lifetime).
			Dur("margin", r.margin).
			Msg("TTL margin consumes the whole credential lifetime")
		ttl = lifetime / 2
	}

	if err := r.store.Set(ctx, TicketKey, creds.Ticket, ttl); err != nil {
		return wechat.Credentials{}, fmt.Errorf("caching jsapi ticket: %w", err)
	}
	if err := r.store.Set(ctx, AccessTokenKey, creds.AccessToken, ttl); err != nil {
		return wechat.Credentials{}, fmt.Errorf("caching access token: %w", err)
	}

	log.Info().Dur("ttl", ttl).Msg("platform credentials refreshed")

	return creds, nil
}

// TicketSource yields a currently valid JS-API ticket.
type TicketSource func(ctx context.Context) (string, error)

// TicketSource returns a source that refreshes on every call. Wrap it with
// CachedTicket so a refresh only happens when the cached entry has lapsed.
func (r *Refresher) TicketSource() TicketSource {
	return func(ctx context.Context) (string, error) {
		creds, err := r.Refresh(ctx)
		if err != nil {
			return "", err
		}
		return creds.Ticket, nil
	}
}

// CachedTicket supplies a source that reads the cached ticket before
// falling through to the wrapped source. The read is non-locking, so
// concurrent requests that observe the same miss each trigger their own
// fall-through; the extra grants are tolerated in exchange for never
// serving a lapsed ticket.
//
// Within a single request the fall-through happens after the miss that
// triggered it, which is the only ordering the signer depends on.
func CachedTicket(store cache.Cache[string]) func(TicketSource) TicketSource {
	return func(next TicketSource) TicketSource {
		return func(ctx context.Context) (string, error) {
			ticket, ok, err := store.Get(ctx, TicketKey)
			if err != nil {
				// a cache read failure is treated as a miss: the wrapped
				// source can still produce a usable ticket
				log.Warn().Err(err).Msg("ticket cache read failed, falling through to refresh")
			} else if ok {
				return ticket, nil
			}

			return next(ctx)
		}
	}
}
