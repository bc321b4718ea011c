// Package metrics holds the Prometheus collectors for the notification
// client and an optional HTTP endpoint exposing them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestDuration tracks notification API latency in seconds.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthnotify_api_request_duration_seconds",
			Help:    "Notification API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"op", "status"},
	)

	// PollCycles counts completed poll cycles by result.
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthnotify_poll_cycles_total",
			Help: "Total number of notification poll cycles",
		},
		[]string{"result"}, // ok, error, stale
	)

	// PollSkipped counts timer ticks that found a cycle still in flight.
	PollSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthnotify_poll_skipped_total",
			Help: "Poll ticks skipped because a cycle was still running",
		},
	)

	// Mutations counts user-initiated lifecycle changes.
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthnotify_mutations_total",
			Help: "Total number of notification mutations",
		},
		[]string{"op", "result"},
	)

	// ToastsShown counts toasts enqueued for presentation.
	ToastsShown = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthnotify_toasts_shown_total",
			Help: "Total number of toasts enqueued",
		},
	)

	// Unread is the unread count of the most recently refreshed engine.
	Unread = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthnotify_unread",
			Help: "Unread notifications held by the client",
		},
		[]string{"filter"},
	)
)

// ObserveRequest records the latency of a single API call.
func ObserveRequest(op, status string, d time.Duration) {
	APIRequestDuration.WithLabelValues(op, status).Observe(d.Seconds())
}

// RecordPoll records the outcome of a poll cycle.
func RecordPoll(result string) {
	PollCycles.WithLabelValues(result).Inc()
}

// RecordMutation records the outcome of a mutation.
func RecordMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Mutations.WithLabelValues(op, result).Inc()
}

// SetUnread publishes the unread count for a filter key.
func SetUnread(filterKey string, n int) {
	Unread.WithLabelValues(filterKey).Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
