package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key holding the access token.
const DefaultRedisKey = "flaskion:auth:access_token"

// RedisStore keeps the token in Redis so several processes share one session.
type RedisStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. An empty key selects
// DefaultRedisKey; a zero ttl stores the token without expiry.
func NewRedisStore(redisClient *redis.Client, key string, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{redis: redisClient, key: key, ttl: ttl}
}

// Get implements TokenStore.
func (s *RedisStore) Get(ctx context.Context) (string, bool, error) {
	token, err := s.redis.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return token, token != "", nil
}

// Set implements TokenStore.
func (s *RedisStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.redis.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear implements TokenStore.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
