// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibs-source/pricefeed-consumer/internal/log"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "consumer"

// Metrics contains metrics exposed by the transaction pipeline.
type Metrics struct {
	// Transactions committed. Callers add the "action" label
	// (create, update).
	Committed metrics.Counter
	// Transactions rejected. Callers add the "code" label, the error code
	// name or "none" outside the engine.
	Rejected metrics.Counter
	// Deliveries answered from the duplicate filter.
	Duplicates metrics.Counter
	// Time spent executing one transaction, in seconds.
	ExecSeconds metrics.Histogram
	// Transactions received and not yet answered.
	InFlight metrics.Gauge
	// Publish timestamp of the last applied update, in seconds.
	LastUpdate metrics.Gauge
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library and registered with the default registry. Optionally, labels
// can be provided along with their values ("feed_id", "2").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	var labels []string
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Committed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "committed_transactions",
			Help:      "Number of committed transactions.",
		}, extend(labels, "action")).With(labelsAndValues...),
		Rejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_transactions",
			Help:      "Number of rejected transactions.",
		}, extend(labels, "code")).With(labelsAndValues...),
		Duplicates: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "duplicate_deliveries",
			Help:      "Number of transactions answered from the duplicate filter.",
		}, labels).With(labelsAndValues...),
		ExecSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "exec_seconds",
			Help:      "Time spent executing one transaction.",
			Buckets:   stdprometheus.ExponentialBuckets(0.00005, 2, 14),
		}, labels).With(labelsAndValues...),
		InFlight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "in_flight",
			Help:      "Transactions received and not yet answered.",
		}, labels).With(labelsAndValues...),
		LastUpdate: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_update_timestamp_seconds",
			Help:      "Publish timestamp of the last applied update.",
		}, labels).With(labelsAndValues...),
	}
}

func extend(labels []string, label string) []string {
	return append(append([]string(nil), labels...), label)
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Committed:   discard.NewCounter(),
		Rejected:    discard.NewCounter(),
		Duplicates:  discard.NewCounter(),
		ExecSeconds: discard.NewHistogram(),
		InFlight:    discard.NewGauge(),
		LastUpdate:  discard.NewGauge(),
	}
}

// Serve exposes the default registry on addr until ctx is done.
func Serve(ctx context.Context, addr, path string, logger *log.Logger) error {
	return serve(ctx, addr, path, promhttp.Handler(), logger)
}

func serve(ctx context.Context, addr, path string, handler http.Handler, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics on %s%s", addr, path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
