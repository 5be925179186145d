// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.FromContext(ctx).WithField("membership_id", id).Info("Invitation accepted")
//
// FromContext adds request_id, user_id, org_id and trace ids when present.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	observability.RegisterMetricsEndpoint(router, registry)
//
// Record helpers accept a nil *Metrics so components work without metrics.
//
// # Tracing
//
// InitOTel installs OTLP gRPC exporters globally. Components take a
// trace.TracerProvider option and fall back to the global provider:
//
//	ctx, span := observability.Tracer(tp).Start(ctx, "membership.Invite")
//	defer func() { observability.EndSpan(span, err) }()
package observability
