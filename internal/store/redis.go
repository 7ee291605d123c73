package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "arena:session:"

// setVersionScript writes KEYS[1] and its version counter KEYS[2] only when ARGV[2] is newer than the stored
// version. ARGV[3] is the TTL in milliseconds, 0 for none.
var setVersionScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current and tonumber(current) >= tonumber(ARGV[2]) then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// RedisStore persists serialized sessions as plain string keys with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a store. An empty prefix uses "arena:session:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) versionKey(sessionID string) string {
	return s.prefix + sessionID + ":version"
}

// Get returns the stored payload or nil when the key does not exist.
func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session %s: %w", sessionID, err)
	}
	return payload, nil
}

// Set writes payload, replacing any previous value.
func (s *RedisStore) Set(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(sessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", sessionID, err)
	}
	return nil
}

// SetVersion writes payload only when version is newer than the last versioned write. It reports false when the
// stored snapshot is already at version or beyond.
func (s *RedisStore) SetVersion(ctx context.Context, sessionID string, version int64, payload []byte, ttl time.Duration) (bool, error) {
	written, err := setVersionScript.Run(ctx, s.client,
		[]string{s.key(sessionID), s.versionKey(sessionID)},
		payload, version, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set session %s: %w", sessionID, err)
	}
	return written == 1, nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID), s.versionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", sessionID, err)
	}
	return nil
}
