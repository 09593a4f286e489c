// Package otelsub records resiliency lifecycle notifications as OpenTelemetry
// metrics and spans, grounded on the teacher's
// internal/infrastructure/observability.OTelEmitter: a meter-backed set of
// counters/histograms plus a tracer for per-notification spans. It knows
// nothing about the root package's Event type, so the caller translates
// each event to one of Recorder's typed Record* calls; this keeps otelsub
// safely importable from the root package without a cycle.
package otelsub

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recorder records resource lifecycle notifications as OTel telemetry.
type Recorder struct {
	tracer trace.Tracer
	logger *slog.Logger

	outcomes       metric.Int64Counter
	stateChanges   metric.Int64Counter
	rejectionRate  metric.Float64Histogram
	gcExamined     metric.Int64Counter
	gcCleared      metric.Int64Counter
}

// NewRecorder builds a Recorder from a meter/tracer pair, typically obtained
// from a global or SDK-provided MeterProvider/TracerProvider. logger
// defaults to slog.Default() when nil.
func NewRecorder(meter metric.Meter, tracer trace.Tracer, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	outcomes, err := meter.Int64Counter(
		"resiliency_resource_outcomes_total",
		metric.WithDescription("Total number of Resource.Acquire outcomes, by resource and outcome"),
	)
	if err != nil {
		return nil, err
	}

	stateChanges, err := meter.Int64Counter(
		"resiliency_circuit_state_changes_total",
		metric.WithDescription("Total number of circuit breaker state transitions"),
	)
	if err != nil {
		return nil, err
	}

	rejectionRate, err := meter.Float64Histogram(
		"resiliency_adaptive_rejection_rate",
		metric.WithDescription("PID controller rejection_rate sampled on every adaptive_update event"),
	)
	if err != nil {
		return nil, err
	}

	gcExamined, err := meter.Int64Counter(
		"resiliency_registry_gc_examined_total",
		metric.WithDescription("Entries examined by the resource registry's idle-eviction pass"),
	)
	if err != nil {
		return nil, err
	}

	gcCleared, err := meter.Int64Counter(
		"resiliency_registry_gc_cleared_total",
		metric.WithDescription("Entries evicted by the resource registry's idle-eviction pass"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		tracer:        tracer,
		logger:        logger,
		outcomes:      outcomes,
		stateChanges:  stateChanges,
		rejectionRate: rejectionRate,
		gcExamined:    gcExamined,
		gcCleared:     gcCleared,
	}, nil
}

// RecordSuccess records a successful Resource.Acquire.
func (r *Recorder) RecordSuccess(ctx context.Context, resource string) {
	ctx, span := r.tracer.Start(ctx, "resiliency.success")
	defer span.End()
	span.SetAttributes(attribute.String("resource", resource))
	r.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("outcome", "success"),
	))
}

// RecordError records a failed Resource.Acquire, tagged with errKind, a
// low-cardinality error classification chosen by the caller (the root
// package passes the error code or the error's Go type name).
func (r *Recorder) RecordError(ctx context.Context, resource, errKind string) {
	ctx, span := r.tracer.Start(ctx, "resiliency.error")
	defer span.End()
	span.SetAttributes(
		attribute.String("resource", resource),
		attribute.String("error_kind", errKind),
	)
	r.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("outcome", "error"),
		attribute.String("error_kind", errKind),
	))
	r.logger.WarnContext(ctx, "resiliency resource error",
		slog.String("resource", resource),
		slog.String("error_kind", errKind))
}

// RecordStateChange records a circuit breaker state transition.
func (r *Recorder) RecordStateChange(ctx context.Context, resource, state string) {
	ctx, span := r.tracer.Start(ctx, "resiliency.state_change")
	defer span.End()
	span.SetAttributes(
		attribute.String("resource", resource),
		attribute.String("state", state),
	)
	r.stateChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("state", state),
	))
	r.logger.InfoContext(ctx, "circuit breaker state changed",
		slog.String("resource", resource),
		slog.String("state", state))
}

// RecordAdaptiveUpdate records one PID controller tick's derived state and
// rejection_rate.
func (r *Recorder) RecordAdaptiveUpdate(ctx context.Context, resource, state string, rejectionRate float64) {
	ctx, span := r.tracer.Start(ctx, "resiliency.adaptive_update")
	defer span.End()
	span.SetAttributes(
		attribute.String("resource", resource),
		attribute.String("state", state),
		attribute.Float64("rejection_rate", rejectionRate),
	)
	r.rejectionRate.Record(ctx, rejectionRate, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("state", state),
	))
}

// RecordGC records one registry idle-eviction scan.
func (r *Recorder) RecordGC(ctx context.Context, examined, cleared int, elapsed time.Duration) {
	ctx, span := r.tracer.Start(ctx, "resiliency.lru_hash_gc")
	defer span.End()
	span.SetAttributes(
		attribute.Int("examined", examined),
		attribute.Int("cleared", cleared),
		attribute.Float64("elapsed_seconds", elapsed.Seconds()),
	)
	r.gcExamined.Add(ctx, int64(examined))
	r.gcCleared.Add(ctx, int64(cleared))
	r.logger.DebugContext(ctx, "registry gc scan",
		slog.Int("examined", examined),
		slog.Int("cleared", cleared),
		slog.Duration("elapsed", elapsed))
}
