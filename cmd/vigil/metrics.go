package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("vigil")

var joinEventsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vigil_join_events_received",
	Help: "Number of join event lines received",
})

var joinEventsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vigil_join_events_failed",
	Help: "Number of join events that could not be decoded or processed",
})

// Serves /metrics until ctx is cancelled.
func RunMetrics(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
