// Package llm is the text-generation transport behind the lab stages.
//
// Providers (OpenAI, Anthropic, Google and a deterministic mock) implement
// CoreLLM. Cross-cutting behavior such as tracing, metrics, circuit
// breaking, rate limiting and timeouts is layered on top as Middleware,
// and TextGenerator adapts the resulting client to ports.TextGenerator.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	    Middleware: []llm.Middleware{
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.TimeoutMiddleware(30 * time.Second),
//	    },
//	})
//
// No retry middleware exists: a stage makes exactly one call and falls
// back deterministically when it fails.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-autolab/internal/ports"
)

// CoreLLM is the minimal contract a provider implements. Middleware wraps
// one CoreLLM in another.
type CoreLLM interface {
	// DoRequest sends prompt and returns the reply with its input and
	// output token counts. opts carries request hints such as
	// "temperature", "max_tokens", "stage" and "lab".
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the model used for subsequent requests.
	GetModel() string

	// SetModel switches the model for subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts before a request is sent.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	// APIKey authenticates against the provider. Keyless providers such
	// as "mock" ignore it.
	APIKey string

	// Model is the provider model identifier.
	Model string

	// BaseURL overrides the provider endpoint. Empty means the default.
	BaseURL string

	// Timeout bounds the provider HTTP client. Zero keeps the SDK default.
	Timeout time.Duration

	// TokenEstimator defaults to a four-characters-per-token heuristic.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM with additional behavior.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped
// provider.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds a client for providerType. Unknown providers, a
// missing model and, for providers that need one, a missing API key are
// rejected.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	entry, ok := lookupProvider(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}
	if !entry.keyless && config.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", providerType, ErrEmptyAPIKey)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	core, err := entry.factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: estimator}, nil
}

// Complete sends prompt and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends prompt and also reports token usage.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens approximates the token count of text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model of the wrapped provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens rounds len(text)/4 up.
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateTokens is the package default estimate, used by providers whose
// responses carry no usage data.
func EstimateTokens(text string) int {
	return SimpleTokenEstimator{}.EstimateTokens(text)
}

// ProviderFactory creates a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

type providerEntry struct {
	factory ProviderFactory
	keyless bool
}

var (
	providersMu sync.RWMutex
	providers   = map[string]providerEntry{}
)

// RegisterProviderFactory registers a provider that requires an API key.
// Registering an existing name replaces it.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	registerProvider(providerType, providerEntry{factory: factory})
}

// RegisterKeylessProviderFactory registers a provider that runs without
// credentials.
func RegisterKeylessProviderFactory(providerType string, factory ProviderFactory) {
	registerProvider(providerType, providerEntry{factory: factory, keyless: true})
}

func registerProvider(providerType string, entry providerEntry) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[providerType] = entry
}

func lookupProvider(providerType string) (providerEntry, bool) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	entry, ok := providers[providerType]
	return entry, ok
}

// IsRegisteredProvider reports whether name has a registered factory.
func IsRegisteredProvider(name string) bool {
	_, ok := lookupProvider(name)
	return ok
}

// RegisteredProviders returns the registered provider names, sorted.
func RegisteredProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiresAPIKey reports whether providerType needs credentials.
func RequiresAPIKey(providerType string) bool {
	entry, ok := lookupProvider(providerType)
	return ok && !entry.keyless
}
