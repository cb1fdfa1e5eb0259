package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	accessKeyPrefix  = "access_token:"
	refreshKeyPrefix = "refresh_token:"

	dialTimeout = 5 * time.Second
)

// commands is the slice of the redis API the store needs. *redis.Client
// satisfies it; tests substitute a map-backed fake.
type commands interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config describes the store's client and per-kind time-to-live values.
// The store performs no expiry bookkeeping of its own: redis is the sole
// TTL enforcer.
type Config struct {
	Client     commands
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Store holds the most recently issued token pair per user under
// access_token:{userID} and refresh_token:{userID}.
type Store struct {
	client     commands
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// New constructs a store with validated configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("tokenstore: redis client required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("tokenstore: ttls must be positive")
	}
	return &Store{
		client:     cfg.Client,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// Dial connects to redis at the given address and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("tokenstore: redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: dialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tokenstore: redis ping: %w", err)
	}
	return client, nil
}

// SavePair writes both tokens with their independent TTLs. A second save
// for the same user unconditionally overwrites the prior pair.
func (s *Store) SavePair(ctx context.Context, userID, accessToken, refreshToken string) error {
	if err := s.client.Set(ctx, accessKeyPrefix+userID, accessToken, s.accessTTL).Err(); err != nil {
		return fmt.Errorf("tokenstore: save access token: %w", err)
	}
	if err := s.client.Set(ctx, refreshKeyPrefix+userID, refreshToken, s.refreshTTL).Err(); err != nil {
		return fmt.Errorf("tokenstore: save refresh token: %w", err)
	}
	return nil
}

// Lookup returns whatever is currently stored for the user. A missing
// entry yields an empty string, not an error.
func (s *Store) Lookup(ctx context.Context, userID string) (string, string, error) {
	access, err := s.get(ctx, accessKeyPrefix+userID)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.get(ctx, refreshKeyPrefix+userID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Invalidate eagerly removes both entries. Absent entries are a no-op.
func (s *Store) Invalidate(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, accessKeyPrefix+userID, refreshKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("tokenstore: invalidate: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tokenstore: lookup %s: %w", key, err)
	}
	return value, nil
}
