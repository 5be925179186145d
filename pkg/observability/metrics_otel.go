package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the membership instruments over OpenTelemetry so they
// reach the OTLP collector alongside traces. A nil *OTelMetrics is a no-op.
type OTelMetrics struct {
	meter metric.Meter

	transitions metric.Int64Counter
	duration    metric.Float64Histogram
	purged      metric.Int64Counter

	dbOpen    metric.Int64ObservableGauge
	dbInUse   metric.Int64ObservableGauge
	dbIdle    metric.Int64ObservableGauge
	dbWaits   metric.Int64ObservableCounter
	dbMaxOpen metric.Int64ObservableGauge
}

// NewOTelMetrics creates the instruments from provider, or from the global
// meter provider when nil
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(InstrumentationName)

	m := &OTelMetrics{meter: meter}
	var err error

	m.transitions, err = meter.Int64Counter(
		"membership.transitions",
		metric.WithDescription("Membership lifecycle operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership.transitions counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"membership.operation.duration",
		metric.WithDescription("Membership operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership.operation.duration histogram: %w", err)
	}

	m.purged, err = meter.Int64Counter(
		"invites.purged",
		metric.WithDescription("Expired invitations deleted by the purge job"),
		metric.WithUnit("{invitation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invites.purged counter: %w", err)
	}

	if m.dbOpen, err = meter.Int64ObservableGauge("db.connections.open",
		metric.WithDescription("Open database connections"), metric.WithUnit("{connection}")); err != nil {
		return nil, fmt.Errorf("failed to create db.connections.open gauge: %w", err)
	}
	if m.dbInUse, err = meter.Int64ObservableGauge("db.connections.in_use",
		metric.WithDescription("Database connections in use"), metric.WithUnit("{connection}")); err != nil {
		return nil, fmt.Errorf("failed to create db.connections.in_use gauge: %w", err)
	}
	if m.dbIdle, err = meter.Int64ObservableGauge("db.connections.idle",
		metric.WithDescription("Idle database connections"), metric.WithUnit("{connection}")); err != nil {
		return nil, fmt.Errorf("failed to create db.connections.idle gauge: %w", err)
	}
	if m.dbWaits, err = meter.Int64ObservableCounter("db.connections.waits",
		metric.WithDescription("Waits for a free database connection"), metric.WithUnit("{wait}")); err != nil {
		return nil, fmt.Errorf("failed to create db.connections.waits counter: %w", err)
	}
	if m.dbMaxOpen, err = meter.Int64ObservableGauge("db.connections.max",
		metric.WithDescription("Maximum open database connections"), metric.WithUnit("{connection}")); err != nil {
		return nil, fmt.Errorf("failed to create db.connections.max gauge: %w", err)
	}

	return m, nil
}

// RecordTransition counts one operation and its latency
func (m *OTelMetrics) RecordTransition(ctx context.Context, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordPurged counts purged invitations
func (m *OTelMetrics) RecordPurged(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(ctx, n)
}

// ObserveDBStats reports connection pool statistics of each named handle
// on every collection. Unregister the returned registration on shutdown.
func (m *OTelMetrics) ObserveDBStats(dbs map[string]*sql.DB) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, db := range dbs {
			stats := db.Stats()
			attrs := metric.WithAttributes(attribute.String("db.pool", name))
			o.ObserveInt64(m.dbOpen, int64(stats.OpenConnections), attrs)
			o.ObserveInt64(m.dbInUse, int64(stats.InUse), attrs)
			o.ObserveInt64(m.dbIdle, int64(stats.Idle), attrs)
			o.ObserveInt64(m.dbWaits, stats.WaitCount, attrs)
			o.ObserveInt64(m.dbMaxOpen, int64(stats.MaxOpenConnections), attrs)
		}
		return nil
	}, m.dbOpen, m.dbInUse, m.dbIdle, m.dbWaits, m.dbMaxOpen)
}
