package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{
			name:     "mock runs without a key",
			provider: "mock",
			config:   ClientConfig{Model: MockDefaultModel},
		},
		{
			name:     "openai requires a key",
			provider: "openai",
			config:   ClientConfig{Model: "gpt-4o-mini"},
			wantErr:  "API key cannot be empty",
		},
		{
			name:     "model is required",
			provider: "mock",
			config:   ClientConfig{},
			wantErr:  "model is required",
		},
		{
			name:     "unknown provider",
			provider: "watsonx",
			config:   ClientConfig{APIKey: "k", Model: "m"},
			wantErr:  "unknown provider: watsonx",
		},
		{
			name:     "invalid base url",
			provider: "openai",
			config:   ClientConfig{APIKey: "k", Model: "m", BaseURL: "ftp://example.com"},
			wantErr:  "invalid BaseURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.provider, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Model, client.GetModel())
		})
	}
}

func TestNewClient_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return coreFunc{next: next, before: func() { order = append(order, name) }}
		}
	}

	client, err := NewClient("mock", ClientConfig{
		Model:      MockDefaultModel,
		Middleware: []Middleware{tag("outer"), tag("middle"), tag("inner")},
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "middle", "inner"}, order)
}

func TestRegisteredProviders(t *testing.T) {
	assert.Subset(t, RegisteredProviders(), []string{"anthropic", "google", "mock", "openai"})
	assert.IsNonDecreasing(t, RegisteredProviders())

	assert.True(t, IsRegisteredProvider("mock"))
	assert.False(t, IsRegisteredProvider("nope"))

	assert.True(t, RequiresAPIKey("openai"))
	assert.False(t, RequiresAPIKey("mock"))
	assert.False(t, RequiresAPIKey("nope"))
}

func TestSimpleTokenEstimator(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"autonomous driving", 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SimpleTokenEstimator{}.EstimateTokens(tt.text), tt.text)
	}

	client, err := NewClient("mock", ClientConfig{Model: MockDefaultModel})
	require.NoError(t, err)
	n, err := client.EstimateTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// coreFunc runs before ahead of every request.
type coreFunc struct {
	next   CoreLLM
	before func()
}

func (c coreFunc) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	c.before()
	return c.next.DoRequest(ctx, prompt, opts)
}

func (c coreFunc) GetModel() string  { return c.next.GetModel() }
func (c coreFunc) SetModel(m string) { c.next.SetModel(m) }
