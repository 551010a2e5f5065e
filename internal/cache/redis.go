package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of go-redis. The client may be nil
// when the startup connectivity probe failed; every method then degrades
// to a no-op. A client that dies later is handled the same way per call,
// there is no reconnection logic.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a (possibly nil) redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Enabled reports whether the store has a live client behind it.
func (s *RedisStore) Enabled() bool { return s.client != nil }

// Get reads and unmarshals a value. Any redis failure reads as a miss.
func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		log.Printf("cache: get %s failed: %v", key, err)
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// stale or corrupt entry; drop it and report a miss
		_ = s.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Set serializes value as JSON and stores it with a TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s.client == nil {
		return ErrUnavailable
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Printf("cache: set %s failed: %v", key, err)
		return ErrUnavailable
	}
	return nil
}

// Delete removes a single key. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return ErrUnavailable
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		log.Printf("cache: delete %s failed: %v", key, err)
		return ErrUnavailable
	}
	return nil
}

// ClearPattern removes every key matching the glob pattern using SCAN so
// large keyspaces are walked without blocking the server.
func (s *RedisStore) ClearPattern(ctx context.Context, pattern string) error {
	if s.client == nil {
		return ErrUnavailable
	}
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				log.Printf("cache: clear %s failed: %v", pattern, err)
				return ErrUnavailable
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: scan %s failed: %v", pattern, err)
		return ErrUnavailable
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			log.Printf("cache: clear %s failed: %v", pattern, err)
			return ErrUnavailable
		}
	}
	return nil
}
