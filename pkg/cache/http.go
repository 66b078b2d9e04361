package cache

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when neither max-age nor Expires is present
	DefaultTTL = 5 * time.Minute
)

// NewEntry builds a cache entry from a completed image response.
// It returns false when the response must not be cached: a non-2xx status
// or a Cache-Control of no-store.
func NewEntry(status int, header http.Header, body []byte) (*CacheEntry, bool) {
	if status < 200 || status > 299 {
		return nil, false
	}
	directives := parseCacheControl(header.Get("Cache-Control"))
	if _, noStore := directives["no-store"]; noStore {
		return nil, false
	}

	now := time.Now()
	entry := &CacheEntry{
		Data:        bytes.Clone(body),
		ContentType: header.Get("Content-Type"),
		ETag:        header.Get("ETag"),
		StatusCode:  status,
		CachedAt:    now,
		Expires:     expiresAt(directives, header, now),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, true
}

// ExpiresFromHeaders returns the freshness deadline announced by a response,
// used to extend an entry after a 304.
func ExpiresFromHeaders(header http.Header) time.Time {
	return expiresAt(parseCacheControl(header.Get("Cache-Control")), header, time.Now())
}

func expiresAt(directives map[string]string, header http.Header, now time.Time) time.Time {
	if _, noCache := directives["no-cache"]; noCache {
		return now
	}
	if maxAge, ok := directives["max-age"]; ok {
		if seconds, err := strconv.Atoi(maxAge); err == nil && seconds >= 0 {
			return now.Add(time.Duration(seconds) * time.Second)
		}
	}
	return parseExpires(header, now)
}

// parseExpires parses the Expires header.
// Returns now + DefaultTTL when the header is missing or unparseable.
func parseExpires(headers http.Header, now time.Time) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultTTL)
	}

	// Already expired: stale immediately, still usable for revalidation
	if expires.Before(now) {
		return now
	}

	return expires
}

func parseCacheControl(value string) map[string]string {
	directives := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, arg, _ := strings.Cut(part, "=")
		directives[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(arg), `"`)
	}
	return directives
}

// ShouldMakeConditionalRequest determines if we should add conditional
// request headers (If-None-Match or If-Modified-Since) based on the cache entry.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.Revalidatable()
}

// ConditionalHeaders returns If-None-Match (ETag) or If-Modified-Since
// headers for revalidating the entry. ETag is preferred.
func ConditionalHeaders(entry *CacheEntry) map[string]string {
	if entry == nil {
		return nil
	}

	if entry.ETag != "" {
		return map[string]string{"If-None-Match": entry.ETag}
	}
	if !entry.LastModified.IsZero() {
		return map[string]string{"If-Modified-Since": entry.LastModified.UTC().Format(http.TimeFormat)}
	}
	return nil
}
