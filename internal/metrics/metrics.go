// Package metrics defines the runtime's OpenTelemetry instruments.
// The meter provider is backed by a Prometheus exporter so the ops
// endpoint can serve the values via promhttp.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/stewardkit/steward"

// NewRegistry returns the Prometheus registry the ops endpoint
// exposes. Go and process collectors are registered so the endpoint
// is useful out of the box.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMeterProvider builds an SDK meter provider that exports into the
// given Prometheus registry.
func NewMeterProvider(reg *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// Metrics bundles the runtime instruments. A nil *Metrics is valid
// and records nothing, which keeps the domain layer testable without
// a meter provider.
type Metrics struct {
	reconciliations metric.Int64Counter
	reconnects      metric.Int64Counter
	requeueDepth    metric.Int64ObservableGauge
}

// New creates the runtime instruments on the given provider and
// registers depth as the requeue-depth gauge callback.
func New(provider metric.MeterProvider, depth func() int64) (*Metrics, error) {
	meter := provider.Meter(meterName)

	reconciliations, err := meter.Int64Counter(
		"steward_reconciliations_total",
		metric.WithDescription("Reconciliation passes by kind, event type, and outcome."),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter(
		"steward_watch_reconnects_total",
		metric.WithDescription("Watch stream reconnects by kind."),
	)
	if err != nil {
		return nil, err
	}

	requeueDepth, err := meter.Int64ObservableGauge(
		"steward_requeue_depth",
		metric.WithDescription("Entries pending in the requeue queue."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reconciliations: reconciliations,
		reconnects:      reconnects,
		requeueDepth:    requeueDepth,
	}, nil
}

// RecordReconciliation counts one reconciliation pass.
func (m *Metrics) RecordReconciliation(ctx context.Context, kind, eventType, outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

// RecordReconnect counts one watch reconnect.
func (m *Metrics) RecordReconnect(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}
