package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the commands interface over a map, tracking the
// TTL each key was written with.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			delete(f.ttls, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func newTestStore(t *testing.T, client commands) *Store {
	t.Helper()
	store, err := New(Config{
		Client:     client,
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return store
}

func TestSavePairThenLookupReturnsExactPair(t *testing.T) {
	client := newFakeRedis()
	store := newTestStore(t, client)

	if err := store.SavePair(context.Background(), "user-a", "access-a", "refresh-a"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SavePair(context.Background(), "user-b", "access-b", "refresh-b"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	access, refresh, err := store.Lookup(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if access != "access-a" || refresh != "refresh-a" {
		t.Fatalf("lookup returned wrong pair: %q, %q", access, refresh)
	}

	// No cross-user leakage.
	access, refresh, err = store.Lookup(context.Background(), "user-b")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if access != "access-b" || refresh != "refresh-b" {
		t.Fatalf("lookup leaked across users: %q, %q", access, refresh)
	}
}

func TestSavePairUsesIndependentTTLs(t *testing.T) {
	client := newFakeRedis()
	store := newTestStore(t, client)

	if err := store.SavePair(context.Background(), "user-a", "access", "refresh"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if got := client.ttls["access_token:user-a"]; got != time.Hour {
		t.Fatalf("access ttl: got %v, want %v", got, time.Hour)
	}
	if got := client.ttls["refresh_token:user-a"]; got != 24*time.Hour {
		t.Fatalf("refresh ttl: got %v, want %v", got, 24*time.Hour)
	}
}

func TestSavePairOverwritesPreviousPair(t *testing.T) {
	client := newFakeRedis()
	store := newTestStore(t, client)

	if err := store.SavePair(context.Background(), "user-a", "old-access", "old-refresh"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SavePair(context.Background(), "user-a", "new-access", "new-refresh"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	access, refresh, err := store.Lookup(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if access != "new-access" || refresh != "new-refresh" {
		t.Fatalf("second save must win: %q, %q", access, refresh)
	}
}

func TestLookupMissingUserYieldsEmptyStrings(t *testing.T) {
	store := newTestStore(t, newFakeRedis())

	access, refresh, err := store.Lookup(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("a miss is not an error: %v", err)
	}
	if access != "" || refresh != "" {
		t.Fatalf("expected empty strings, got %q, %q", access, refresh)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	client := newFakeRedis()
	store := newTestStore(t, client)

	if err := store.SavePair(context.Background(), "user-a", "access", "refresh"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Invalidate(context.Background(), "user-a"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if err := store.Invalidate(context.Background(), "user-a"); err != nil {
		t.Fatalf("second invalidate must be a no-op, got %v", err)
	}

	access, refresh, err := store.Lookup(context.Background(), "user-a")
	if err != nil || access != "" || refresh != "" {
		t.Fatalf("entries must be gone after invalidate: %q, %q, %v", access, refresh, err)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	store := newTestStore(t, client)

	if err := store.SavePair(context.Background(), "user-a", "a", "r"); err == nil {
		t.Fatalf("expected save error when redis is down")
	}
	if _, _, err := store.Lookup(context.Background(), "user-a"); err == nil {
		t.Fatalf("expected lookup error when redis is down")
	}
	if err := store.Invalidate(context.Background(), "user-a"); err == nil {
		t.Fatalf("expected invalidate error when redis is down")
	}
}
