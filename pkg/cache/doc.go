// Package cache stores fetched image bytes in Redis so the blob manager can
// serve repeat views without a network round trip.
//
// Freshness follows the response headers of the image endpoint:
//
// - Cache-Control max-age (the API sends "public, max-age=3600")
// - Expires, when max-age is absent
// - DefaultTTL otherwise
// - no-store disables caching of the response
//
// Entries outlive their freshness by a stale grace period so that an
// expired entry carrying an ETag or Last-Modified can be revalidated with a
// conditional request instead of downloaded again.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, cache.DefaultStaleGrace)
//
//	key := cache.CacheKey{Path: "/api/v1/images/generated/2025-01-01/a.png", Scope: "user-42"}
//
//	entry, fresh, err := manager.Lookup(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the API
//	case !fresh && cache.ShouldMakeConditionalRequest(entry):
//		headers := cache.ConditionalHeaders(entry)
//		// fetch with headers; on 304 call manager.UpdateTTL
//	}
//
// # Metrics
//
//   - flaskion_cache_hits_total{state="fresh|stale"}
//   - flaskion_cache_misses_total
//   - flaskion_cache_stored_bytes_total
//   - flaskion_cache_304_responses_total
//   - flaskion_cache_errors_total{operation}
package cache
