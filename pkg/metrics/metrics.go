// Package metrics provides the Prometheus registry and exposition handler
// for the flaskion client. Metrics are defined in their respective packages
// (client, cache, blob, pagination) to avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flaskion/flaskion-client/pkg/logging"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes Handler on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - flaskion_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status ("network_error" on transport failure)
//   - flaskion_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - flaskion_transport_errors_total{method} (Counter): Exchanges that produced no parseable response
//   - flaskion_retries_total{method} (Counter): Transport-level retry attempts (GET only)
//
// Cache Metrics (pkg/cache):
//   - flaskion_cache_hits_total{state} (Counter): Cache lookups by freshness ("fresh", "stale")
//   - flaskion_cache_misses_total (Counter): Cache misses
//   - flaskion_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - flaskion_cache_304_responses_total (Counter): Revalidations answered with 304
//   - flaskion_cache_errors_total{operation} (Counter): Cache operation errors
//
// Blob Metrics (pkg/blob):
//   - flaskion_blob_live_handles (Gauge): Handles not yet released
//   - flaskion_blob_live_bytes (Gauge): Bytes held by live handles
//   - flaskion_blob_acquires_total{result} (Counter): Acquisitions by source ("network", "cache", "revalidated", "error", "superseded")
//   - flaskion_blob_releases_total (Counter): Released handles
//
// Gallery Metrics (pkg/pagination):
//   - flaskion_gallery_loads_total{kind, result} (Counter): Page loads ("reset", "more") by result ("ok", "failed", "stale")
//   - flaskion_gallery_items_total{result} (Counter): Item images by result ("filled", "failed", "discarded")
//
// Example Prometheus Queries:
//
//   # Image cache hit rate
//   sum(rate(flaskion_cache_hits_total{state="fresh"}[5m])) /
//   (sum(rate(flaskion_cache_hits_total[5m])) + sum(rate(flaskion_cache_misses_total[5m])))
//
//   # Leaked handles
//   flaskion_blob_live_handles > 200
//
//   # Server error rate
//   sum(rate(flaskion_requests_total{status=~"5.."}[5m])) / sum(rate(flaskion_requests_total[5m]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(flaskion_request_duration_seconds_bucket[5m]))
