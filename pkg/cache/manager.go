package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStaleGrace is how long an expired entry is kept for revalidation.
const DefaultStaleGrace = 24 * time.Hour

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis      *redis.Client
	staleGrace time.Duration
}

// NewManager creates a new cache manager with Redis backend.
// A non-positive staleGrace selects DefaultStaleGrace.
func NewManager(redisClient *redis.Client, staleGrace time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if staleGrace <= 0 {
		staleGrace = DefaultStaleGrace
	}
	return &Manager{
		redis:      redisClient,
		staleGrace: staleGrace,
	}
}

// Lookup retrieves an entry whether or not it is still fresh.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Lookup(ctx context.Context, key CacheKey) (*CacheEntry, bool, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, false, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		CacheHits.WithLabelValues("stale").Inc()
		return &entry, false, nil
	}

	CacheHits.WithLabelValues("fresh").Inc()
	return &entry, true, nil
}

// Get retrieves a fresh cache entry.
// Returns ErrCacheMiss if the key doesn't exist or the entry is stale.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, fresh, err := m.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set stores a cache entry. The Redis TTL is the entry's remaining
// freshness plus the stale grace period when the entry can be revalidated.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if entry.Revalidatable() {
		ttl += m.staleGrace
	}
	if ttl <= 0 {
		// Expired and cannot be revalidated, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.Add(float64(len(data)))

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL extends an existing entry after a 304 Not Modified response.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) (*CacheEntry, error) {
	entry, _, err := m.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	ConditionalRequests.Inc()
	entry.Expires = newExpires

	if err := m.Set(ctx, key, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
