package llm

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/ahrav/go-autolab/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricRequestsTotal  = "autolab_llm_requests_total"
	MetricRequestLatency = "autolab_llm_request_duration_seconds"
	MetricTokensTotal    = "autolab_llm_tokens_total"
)

// MetricsMiddleware records request count, latency and token usage per
// provider, model, stage and outcome. A nil collector disables recording.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, collector: collector, provider: provider}
	}
}

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, in, out, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"stage":    optString(opts, "stage"),
		"status":   requestStatus(err),
	}
	m.collector.RecordLatency(MetricRequestLatency, time.Since(start), labels)
	m.collector.RecordCounter(MetricRequestsTotal, 1, labels)
	if err == nil {
		m.collector.RecordCounter(MetricTokensTotal, float64(in), withLabel(labels, "direction", "input"))
		m.collector.RecordCounter(MetricTokensTotal, float64(out), withLabel(labels, "direction", "output"))
	}
	return response, in, out, err
}

func (m *metricsLLM) GetModel() string      { return m.next.GetModel() }
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }

// requestStatus buckets err into a low-cardinality label value.
func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := maps.Clone(labels)
	out[key] = value
	return out
}
