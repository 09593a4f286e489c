package resiliency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hostward/resiliency/internal/otelsub"
)

// EnableOTel subscribes an OpenTelemetry recorder to every resource's
// events, translating the bus's {success, error, state_change,
// adaptive_update, lru_hash_gc} vocabulary (spec.md §6) into metrics and
// spans. It returns the live subscription so callers can Unsubscribe to
// stop recording.
func EnableOTel(meter metric.Meter, tracer trace.Tracer, logger *slog.Logger) (*Subscription, error) {
	rec, err := otelsub.NewRecorder(meter, tracer, logger)
	if err != nil {
		return nil, err
	}

	return Subscribe("", func(e Event) {
		ctx := context.Background()
		switch e.Type {
		case EventSuccess:
			rec.RecordSuccess(ctx, e.Resource)
		case EventError:
			rec.RecordError(ctx, e.Resource, errKind(e.Metadata["error"]))
		case EventStateChange:
			if state, ok := e.Metadata["state"].(string); ok {
				rec.RecordStateChange(ctx, e.Resource, state)
			}
		case EventAdaptiveUpdate:
			state, _ := e.Metadata["state"].(string)
			rate, _ := e.Metadata["rejection_rate"].(float64)
			rec.RecordAdaptiveUpdate(ctx, e.Resource, state, rate)
		case EventLRUHashGC:
			examined, _ := e.Metadata["examined"].(int)
			cleared, _ := e.Metadata["cleared"].(int)
			elapsed, _ := e.Metadata["elapsed"].(time.Duration)
			rec.RecordGC(ctx, examined, cleared, elapsed)
		}
	}), nil
}

func errKind(v any) string {
	if err, ok := v.(error); ok {
		if b, ok := asBaseError(err); ok {
			return string(b.Code)
		}
		return fmt.Sprintf("%T", err)
	}
	return "unknown"
}

func asBaseError(err error) (*BaseError, bool) {
	type coder interface{ baseError() *BaseError }
	if c, ok := err.(coder); ok {
		return c.baseError(), true
	}
	return nil, false
}
