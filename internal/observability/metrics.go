// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"jobqueue/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// StatsSource reports job counts per status.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// RegisterQueueDepth exports an observable gauge of job counts per status,
// read from src at each collection.
func RegisterQueueDepth(meter metric.Meter, src StatsSource) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge("jobqueue.jobs",
		metric.WithDescription("Jobs currently in each status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		stats, err := src.Stats(ctx)
		if err != nil {
			return err
		}
		for status, n := range map[store.JobStatus]int64{
			store.JobStatusPending:   stats.Pending,
			store.JobStatusClaimed:   stats.Claimed,
			store.JobStatusCompleted: stats.Completed,
			store.JobStatusFailed:    stats.Failed,
		} {
			o.ObserveInt64(gauge, n, metric.WithAttributes(attribute.String("status", string(status))))
		}
		return nil
	}, gauge)
}
