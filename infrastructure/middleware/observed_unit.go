package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

const tracerName = "github.com/ahrav/go-autolab/infrastructure/middleware"

// ObservedUnit wraps a unit with a span and latency metrics. It adds no
// behavior of its own: state and errors pass through unchanged.
type ObservedUnit struct {
	next    ports.Unit
	tracer  trace.Tracer
	metrics ports.MetricsCollector
}

var _ ports.Unit = (*ObservedUnit)(nil)

// NewObservedUnit wraps next. A nil tracer provider uses the global one
// and a nil metrics collector disables metrics.
func NewObservedUnit(next ports.Unit, tp trace.TracerProvider, metrics ports.MetricsCollector) (*ObservedUnit, error) {
	if next == nil {
		return nil, errors.New("observed unit: next unit is required")
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &ObservedUnit{next: next, tracer: tp.Tracer(tracerName), metrics: metrics}, nil
}

// Decorator returns a unit decorator suitable for the orchestrator. Nil
// units are returned unchanged.
func Decorator(tp trace.TracerProvider, metrics ports.MetricsCollector) func(ports.Unit) ports.Unit {
	return func(u ports.Unit) ports.Unit {
		observed, err := NewObservedUnit(u, tp, metrics)
		if err != nil {
			return u
		}
		return observed
	}
}

// Name returns the wrapped unit name.
func (o *ObservedUnit) Name() string { return o.next.Name() }

// Validate validates the wrapped unit.
func (o *ObservedUnit) Validate() error { return o.next.Validate() }

// Unwrap returns the wrapped unit.
func (o *ObservedUnit) Unwrap() ports.Unit { return o.next }

// Execute runs the wrapped unit inside a "unit.execute" span.
func (o *ObservedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	attrs := []attribute.KeyValue{attribute.String("autolab.unit", o.next.Name())}
	if lab, ok := domain.Get(state, domain.KeyLabName); ok {
		attrs = append(attrs, attribute.String("autolab.lab", lab))
	}
	if event, ok := domain.Get(state, domain.KeyEvent); ok {
		attrs = append(attrs,
			attribute.String("autolab.event_id", event.ID),
			attribute.String("autolab.event_type", string(event.Type)),
		)
	}
	ctx, span := o.tracer.Start(ctx, "unit.execute", trace.WithAttributes(attrs...))
	defer span.End()

	fallbacksBefore := fallbackCount(state)
	start := time.Now()
	out, err := o.next.Execute(ctx, state)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if added := fallbackCount(out) - fallbacksBefore; added > 0 {
		status = "fallback"
		span.AddEvent("stage.fallback", trace.WithAttributes(attribute.Int("count", added)))
	}

	if o.metrics != nil {
		o.metrics.RecordLatency(ports.MetricUnitDuration, elapsed, map[string]string{
			"unit":   o.next.Name(),
			"status": status,
		})
		if err != nil {
			o.metrics.RecordCounter(ports.MetricUnitErrorsTotal, 1, map[string]string{"unit": o.next.Name()})
		}
	}
	return out, err
}

func fallbackCount(state domain.State) int {
	fallbacks, _ := domain.Get(state, domain.KeyFallbacks)
	return len(fallbacks)
}
