// Package metrics provides the Prometheus registry and exposition endpoint
// for the Photos Library client. All metrics are defined in their respective
// packages (client, ratelimit, pagination, checkpoint) to maintain modularity
// and avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric family the client packages register.
var Names = []string{
	"gphotos_throttle_waits_total",
	"gphotos_throttle_wait_seconds",
	"gphotos_pages_fetched_total",
	"gphotos_items_yielded_total",
	"gphotos_requests_total",
	"gphotos_request_duration_seconds",
	"gphotos_errors_total",
	"gphotos_checkpoint_operations_total",
}

// Handler returns the /metrics HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Debug().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Throttle Metrics (pkg/ratelimit):
//   - gphotos_throttle_waits_total (Counter): Calls that had to wait for the minimum interval
//   - gphotos_throttle_wait_seconds (Histogram): Time spent waiting before a call
//
// Pagination Metrics (pkg/pagination):
//   - gphotos_pages_fetched_total{name} (Counter): Page fetches by run name
//   - gphotos_items_yielded_total{name} (Counter): Items handed to consumers by run name
//
// Request Metrics (pkg/client):
//   - gphotos_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - gphotos_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint, including pacing
//   - gphotos_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Checkpoint Metrics (pkg/checkpoint):
//   - gphotos_checkpoint_operations_total{operation, result} (Counter): Save/load/delete outcomes
//
// Example Prometheus Queries:
//
//   # Share of calls delayed by pacing
//   sum(rate(gphotos_throttle_waits_total[5m])) / sum(rate(gphotos_requests_total[5m]))
//
//   # Quota rejections
//   rate(gphotos_errors_total{class="rate_limit"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gphotos_request_duration_seconds_bucket[5m]))
