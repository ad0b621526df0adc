package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

type stubUnit struct {
	name     string
	err      error
	fallback bool
}

func (s *stubUnit) Name() string { return s.name }
func (s *stubUnit) Validate() error { return nil }

func (s *stubUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	if s.err != nil {
		return state, s.err
	}
	if s.fallback {
		state = state.AppendFallback(s.name)
	}
	return domain.With(state, domain.KeySynthesis, domain.Synthesis{Summary: "done"}), nil
}

type spanRecorder struct {
	noop.TracerProvider
	mu    sync.Mutex
	spans []*recordedSpan
}

func (r *spanRecorder) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recorderTracer{recorder: r}
}

type recorderTracer struct {
	noop.Tracer
	recorder *spanRecorder
}

func (t *recorderTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordedSpan{name: name, attrs: map[attribute.Key]string{}}
	for _, kv := range cfg.Attributes() {
		span.attrs[kv.Key] = kv.Value.Emit()
	}
	t.recorder.mu.Lock()
	t.recorder.spans = append(t.recorder.spans, span)
	t.recorder.mu.Unlock()
	return ctx, span
}

type recordedSpan struct {
	noop.Span
	name   string
	attrs  map[attribute.Key]string
	events []string
	status codes.Code
	errs   int
	ended  bool
}

func (s *recordedSpan) AddEvent(name string, _ ...trace.EventOption) { s.events = append(s.events, name) }
func (s *recordedSpan) SetStatus(code codes.Code, _ string) { s.status = code }
func (s *recordedSpan) RecordError(error, ...trace.EventOption) { s.errs++ }
func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

func TestObservedUnit_Execute(t *testing.T) {
	boom := errors.New("catalog offline")

	tests := []struct {
		name       string
		unit       *stubUnit
		wantErr    error
		wantStatus string
		wantCode   codes.Code
		wantEvents []string
	}{
		{
			name:       "success",
			unit:       &stubUnit{name: "SafetyLab.synthesizer"},
			wantStatus: "success",
			wantCode:   codes.Unset,
		},
		{
			name:       "fallback",
			unit:       &stubUnit{name: "SafetyLab.synthesizer", fallback: true},
			wantStatus: "fallback",
			wantCode:   codes.Unset,
			wantEvents: []string{"stage.fallback"},
		},
		{
			name:       "error",
			unit:       &stubUnit{name: "SafetyLab.synthesizer", err: boom},
			wantErr:    boom,
			wantStatus: "error",
			wantCode:   codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, reg := newTestMetrics(t)
			tp := &spanRecorder{}

			observed, err := NewObservedUnit(tt.unit, tp, metrics)
			require.NoError(t, err)
			assert.Equal(t, tt.unit.name, observed.Name())
			assert.NoError(t, observed.Validate())
			assert.Same(t, tt.unit, observed.Unwrap())

			state := domain.NewState().WithMultiple(map[string]any{
				domain.KeyLabName.Name(): domain.SafetyLab,
				domain.KeyEvent.Name():   domain.Event{ID: "evt-1", Type: domain.EventCutIn},
			})
			out, err := observed.Execute(context.Background(), state)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				_, ok := domain.Get(out, domain.KeySynthesis)
				assert.True(t, ok)
			}

			require.Len(t, tp.spans, 1)
			span := tp.spans[0]
			assert.Equal(t, "unit.execute", span.name)
			assert.True(t, span.ended)
			assert.Equal(t, tt.wantCode, span.status)
			assert.Equal(t, tt.wantEvents, span.events)
			assert.Equal(t, "SafetyLab", span.attrs["autolab.lab"])
			assert.Equal(t, "evt-1", span.attrs["autolab.event_id"])
			assert.Equal(t, "cut_in", span.attrs["autolab.event_type"])

			assert.Equal(t, 1, testutil.CollectAndCount(metrics.unitDuration))
			assert.Equal(t, tt.wantStatus, unitStatusLabel(t, reg))
			wantErrors := 0.0
			if tt.wantErr != nil {
				wantErrors = 1
			}
			assert.InDelta(t, wantErrors, testutil.ToFloat64(metrics.unitErrors.WithLabelValues(tt.unit.name)), 1e-9)
		})
	}
}

// unitStatusLabel returns the status label of the single unit duration series.
func unitStatusLabel(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != ports.MetricUnitDuration {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "status" {
				return lp.GetValue()
			}
		}
	}
	t.Fatalf("%s not gathered", ports.MetricUnitDuration)
	return ""
}

func TestNewObservedUnit_RequiresUnit(t *testing.T) {
	_, err := NewObservedUnit(nil, nil, nil)
	assert.Error(t, err)
}

func TestDecorator(t *testing.T) {
	decorate := Decorator(noop.NewTracerProvider(), nil)

	unit := &stubUnit{name: "judge"}
	wrapped := decorate(unit)
	observed, ok := wrapped.(*ObservedUnit)
	require.True(t, ok)
	assert.Same(t, unit, observed.Unwrap())

	out, err := wrapped.Execute(context.Background(), domain.NewState())
	require.NoError(t, err)
	_, ok = domain.Get(out, domain.KeySynthesis)
	assert.True(t, ok, "metrics are optional")

	assert.Nil(t, decorate(nil))
}

var _ ports.Unit = (*stubUnit)(nil)
