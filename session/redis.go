package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of redis.UniversalClient used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix is prepended to every session id (default "codeagent:session:").
	KeyPrefix string
	// TTL expires snapshots after the last save. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore persists session snapshots in Redis, one string key per session.
type RedisStore struct {
	client RedisClient
	opts   RedisOptions
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client RedisClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{KeyPrefix: "codeagent:session:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisStore{client: client, opts: opts}
}

// NewRedisStoreFromURL creates a client from a redis:// or rediss:// URL.
// Username, password and the database number (path) are taken from the URL.
// The returned client must be closed by the caller.
func NewRedisStoreFromURL(rawURL string, optFns ...func(o *RedisOptions)) (*RedisStore, *redis.Client, error) {
	ropts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(ropts)

	return NewRedisStore(client, optFns...), client, nil
}

func (s *RedisStore) key(sessionID string) string { return s.opts.KeyPrefix + sessionID }

// Load returns the snapshot or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session %s: %w", sessionID, err)
	}
	return data, nil
}

// Save writes the snapshot and refreshes the TTL.
func (s *RedisStore) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	if err := s.client.Set(ctx, s.key(sessionID), snapshot, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes the snapshot.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del session %s: %w", sessionID, err)
	}
	return nil
}
