package llm

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-autolab/internal/ports"
)

// StackConfig describes the text-generation client stack: which provider
// to call and which middleware to wrap it in.
type StackConfig struct {
	Provider string        `yaml:"provider" json:"provider" validate:"required,llmprovider"`
	Model    string        `yaml:"model" json:"model" validate:"required"`
	APIKey   string        `yaml:"api_key" json:"-"`
	BaseURL  string        `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`

	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" json:"burst" validate:"min=0"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	Tracing        bool                 `yaml:"tracing" json:"tracing"`
}

// CircuitBreakerConfig configures CircuitBreakerMiddleware. MaxFailures
// of zero disables the breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" json:"max_failures" validate:"min=0"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout" validate:"min=0"`
}

// DefaultStackConfig runs the offline mock provider with the full
// middleware chain.
func DefaultStackConfig() StackConfig {
	return StackConfig{
		Provider:          "mock",
		Model:             MockDefaultModel,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
		Tracing: true,
	}
}

// StackOption supplies the collaborators a stack reports to.
type StackOption func(*stackDeps)

type stackDeps struct {
	metrics ports.MetricsCollector
	tracer  trace.TracerProvider
}

// WithStackMetrics records request metrics on collector.
func WithStackMetrics(collector ports.MetricsCollector) StackOption {
	return func(d *stackDeps) { d.metrics = collector }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) StackOption {
	return func(d *stackDeps) { d.tracer = tp }
}

// Middleware returns the chain described by c, outermost first: tracing,
// metrics, circuit breaker, rate limit, timeout.
func (c StackConfig) Middleware(opts ...StackOption) []Middleware {
	var deps stackDeps
	for _, opt := range opts {
		opt(&deps)
	}

	var chain []Middleware
	if c.Tracing {
		chain = append(chain, TracingMiddleware(c.Provider, deps.tracer))
	}
	if deps.metrics != nil {
		chain = append(chain, MetricsMiddleware(deps.metrics, c.Provider))
	}
	if c.CircuitBreaker.MaxFailures > 0 {
		chain = append(chain, CircuitBreakerMiddleware(c.CircuitBreaker.MaxFailures, c.CircuitBreaker.ResetTimeout))
	}
	if c.RequestsPerSecond > 0 {
		chain = append(chain, RateLimitMiddleware(rate.Limit(c.RequestsPerSecond), max(c.Burst, 1)))
	}
	if c.Timeout > 0 {
		chain = append(chain, TimeoutMiddleware(c.Timeout))
	}
	return chain
}

// NewStack builds the client described by c.
func NewStack(c StackConfig, opts ...StackOption) (*Client, error) {
	client, err := NewClient(c.Provider, ClientConfig{
		APIKey:     c.APIKey,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		Middleware: c.Middleware(opts...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s client stack: %w", c.Provider, err)
	}
	return client, nil
}
