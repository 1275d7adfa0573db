package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixiao/campus-bridge/internal/cache"
	"github.com/weixiao/campus-bridge/internal/wechat"
)

// recordingStore captures Set calls so tests can assert on keys and TTLs.
type recordingStore struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	history []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
	}
}

func (s *recordingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *recordingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	s.ttls[key] = ttl
	s.history = append(s.history, key)
	return nil
}

func (s *recordingStore) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.ttls, key)
	return nil
}

func (s *recordingStore) Close() error { return nil }

func staticGrant(creds wechat.Credentials) GrantFn {
	return func(ctx context.Context) (wechat.Credentials, error) {
		return creds, nil
	}
}

func TestRefresh_CachesPairWithMargin(t *testing.T) {
	store := newRecordingStore()
	refresher := NewRefresher(staticGrant(wechat.Credentials{
		AccessToken: "T1",
		Ticket:      "TICKET1",
		ExpiresIn:   7200,
	}), store, 200*time.Second)

	creds, err := refresher.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", creds.AccessToken)

	assert.Equal(t, "T1", store.values[AccessTokenKey])
	assert.Equal(t, "TICKET1", store.values[TicketKey])

	// 7200s advertised, 200s margin: cached for 7000s
	assert.Equal(t, 7000*time.Second, store.ttls[AccessTokenKey])
	assert.Equal(t, 7000*time.Second, store.ttls[TicketKey])

	// the ticket the token was derived from lands first
	assert.Equal(t, []string{TicketKey, AccessTokenKey}, store.history)
}

func TestRefresh_ExcessiveMarginFallsBack(t *testing.T) {
	store := newRecordingStore()
	refresher := NewRefresher(staticGrant(wechat.Credentials{
		AccessToken: "T1",
		Ticket:      "TICKET1",
		ExpiresIn:   7200,
	}), store, 7200*time.Second)

	_, err := refresher.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3600*time.Second, store.ttls[AccessTokenKey])
}

func TestRefresh_UpstreamFailureLeavesCacheUntouched(t *testing.T) {
	store := newRecordingStore()
	store.values[AccessTokenKey] = "previous-token"
	store.values[TicketKey] = "previous-ticket"

	refresher := NewRefresher(func(ctx context.Context) (wechat.Credentials, error) {
		return wechat.Credentials{}, errors.New("upstream unavailable")
	}, store, 200*time.Second)

	_, err := refresher.Refresh(context.Background())
	assert.ErrorContains(t, err, "upstream unavailable")

	// last-known-good values remain in use
	assert.Equal(t, "previous-token", store.values[AccessTokenKey])
	assert.Equal(t, "previous-ticket", store.values[TicketKey])
}

func TestRefresh_CacheWriteFailureSurfaced(t *testing.T) {
	store := newRecordingStore()
	store.setErr = errors.New("connection reset")

	refresher := NewRefresher(staticGrant(wechat.Credentials{
		AccessToken: "T1", Ticket: "TICKET1", ExpiresIn: 7200,
	}), store, 200*time.Second)

	_, err := refresher.Refresh(context.Background())
	assert.ErrorContains(t, err, "caching jsapi ticket")
}

func TestRefresh_ConcurrentCallsEachSucceed(t *testing.T) {
	memory, err := cache.NewMemory[string](100)
	require.NoError(t, err)

	var counter sync.Mutex
	issued := 0
	grant := func(ctx context.Context) (wechat.Credentials, error) {
		counter.Lock()
		issued++
		n := issued
		counter.Unlock()
		return wechat.Credentials{
			AccessToken: fmt.Sprintf("T%d", n),
			Ticket:      fmt.Sprintf("TICKET%d", n),
			ExpiresIn:   7200,
		}, nil
	}

	refresher := NewRefresher(grant, memory, 200*time.Second)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = refresher.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "refresh %d", i)
	}

	// whichever write won, the stored pair is a complete token/ticket value
	token, found, err := memory.Get(context.Background(), AccessTokenKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Regexp(t, `^T\d+$`, token)

	ticket, found, err := memory.Get(context.Background(), TicketKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Regexp(t, `^TICKET\d+$`, ticket)
}

func TestCachedTicket_HitSkipsRefresh(t *testing.T) {
	store := newRecordingStore()
	store.values[TicketKey] = "cached-ticket"

	called := false
	source := CachedTicket(store)(func(ctx context.Context) (string, error) {
		called = true
		return "fresh-ticket", nil
	})

	ticket, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-ticket", ticket)
	assert.False(t, called)
}

func TestCachedTicket_MissFallsThrough(t *testing.T) {
	store := newRecordingStore()

	source := CachedTicket(store)(func(ctx context.Context) (string, error) {
		return "fresh-ticket", nil
	})

	ticket, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-ticket", ticket)
}

func TestCachedTicket_ReadFailureTreatedAsMiss(t *testing.T) {
	store := newRecordingStore()
	store.getErr = errors.New("connection reset")

	source := CachedTicket(store)(func(ctx context.Context) (string, error) {
		return "fresh-ticket", nil
	})

	ticket, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-ticket", ticket)
}

func TestCachedTicket_RefreshWritesThenServes(t *testing.T) {
	memory, err := cache.NewMemory[string](100)
	require.NoError(t, err)

	refresher := NewRefresher(staticGrant(wechat.Credentials{
		AccessToken: "T1", Ticket: "TICKET1", ExpiresIn: 7200,
	}), memory, 200*time.Second)

	source := CachedTicket(memory)(refresher.TicketSource())

	// miss populates the cache
	ticket, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TICKET1", ticket)

	// second read is a hit
	cached, found, err := memory.Get(context.Background(), TicketKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "TICKET1", cached)
}
