package cache

import (
	"time"
)

// CacheEntry represents a cached image payload.
type CacheEntry struct {
	// Data is the raw response body
	Data []byte `json:"data"`

	// ContentType as announced by the server
	ContentType string `json:"content_type"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// LastModified for conditional requests (If-Modified-Since)
	LastModified time.Time `json:"last_modified"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Revalidatable reports whether the entry carries a validator.
func (e *CacheEntry) Revalidatable() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
