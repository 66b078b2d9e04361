package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached image.
type CacheKey struct {
	// Path is the image path (e.g., "/api/v1/images/generated/2025-01-01/a.png")
	Path string

	// QueryParams are optional query parameters
	QueryParams url.Values

	// Scope separates entries fetched with different credentials ("" for public)
	Scope string
}

// String generates a deterministic cache key string.
// Format: flaskion:blob:path:query1=val1:scope=abc
//
// Example:
//
//	flaskion:blob:api/v1/images/generated/2025-01-01/a.png:scope=user-42
func (k CacheKey) String() string {
	parts := []string{"flaskion", "blob"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}
