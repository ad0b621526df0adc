package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// stubCore is a scriptable CoreLLM for middleware tests.
type stubCore struct {
	mu       sync.Mutex
	model    string
	response string
	errs     []error
	delay    time.Duration
	calls    int
	lastOpts map[string]any
}

func newStubCore() *stubCore {
	return &stubCore{model: "stub-model", response: "ok"}
}

// failNext queues errors returned by the next calls, in order.
func (s *stubCore) failNext(errs ...error) *stubCore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
	return s
}

func (s *stubCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	s.mu.Lock()
	s.calls++
	s.lastOpts = opts
	delay := s.delay
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return s.response, 7, 3, nil
}

func (s *stubCore) GetModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *stubCore) SetModel(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

func (s *stubCore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// metricCall is one call observed by recordingCollector.
type metricCall struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

type recordingCollector struct {
	mu    sync.Mutex
	calls []metricCall
}

func (r *recordingCollector) add(c metricCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	r.add(metricCall{"latency", op, d.Seconds(), labels})
}

func (r *recordingCollector) RecordCounter(name string, v float64, labels map[string]string) {
	r.add(metricCall{"counter", name, v, labels})
}

func (r *recordingCollector) RecordGauge(name string, v float64, labels map[string]string) {
	r.add(metricCall{"gauge", name, v, labels})
}

func (r *recordingCollector) RecordHistogram(name string, v float64, labels map[string]string) {
	r.add(metricCall{"histogram", name, v, labels})
}

func (r *recordingCollector) named(name string) []metricCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricCall
	for _, c := range r.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// recordingTracerProvider captures the spans started through it.
type recordingTracerProvider struct {
	noop.TracerProvider
	mu    sync.Mutex
	spans []*recordingSpan
}

func (p *recordingTracerProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

func (p *recordingTracerProvider) recorded() []*recordingSpan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*recordingSpan(nil), p.spans...)
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingTracerProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordingSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	for _, kv := range cfg.Attributes() {
		span.attrs[kv.Key] = kv.Value
	}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, span)
	t.provider.mu.Unlock()
	return ctx, span
}

type recordingSpan struct {
	noop.Span
	name   string
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }
