package llm

import (
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"
)

// Request parameter bounds shared by every provider.
const (
	DefaultMaxTokens = 1024
	MinTemperature   = 0.0
	MaxTemperature   = 2.0
	MinTimeout       = time.Second
	MaxTimeout       = 10 * time.Minute
)

// RequestOptions is the provider-neutral view of the opts map.
type RequestOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	System      string

	// Stage and Lab identify the caller. Providers use them to build a
	// system prompt when none is given.
	Stage string
	Lab   string
}

// ParseRequestOptions reads opts, falling back to defaults for missing or
// out-of-range values. Integer hints may arrive as any numeric type.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		Model:     defaultModel,
		MaxTokens: DefaultMaxTokens,
		System:    optString(opts, "system"),
		Stage:     optString(opts, "stage"),
		Lab:       optString(opts, "lab"),
	}
	if model := optString(opts, "model"); model != "" {
		options.Model = model
	}
	if n, ok := optInt(opts, "max_tokens"); ok && n > 0 {
		options.MaxTokens = n
	}
	if t, ok := optFloat(opts, "temperature"); ok && t >= MinTemperature && t <= MaxTemperature {
		options.Temperature = &t
	}
	if options.System == "" && options.Stage != "" {
		options.System = stageSystemPrompt(options.Stage, options.Lab)
	}
	return options
}

// WantsJSON reports whether the caller is a lab stage, all of which expect
// a single JSON object back.
func (o RequestOptions) WantsJSON() bool { return o.Stage != "" }

func stageSystemPrompt(stage, lab string) string {
	if lab == "" {
		return fmt.Sprintf("You are the %s stage of an autonomous-driving research lab. "+
			"Reply with a single JSON object and nothing else.", stage)
	}
	return fmt.Sprintf("You are the %s stage of %s, an autonomous-driving research lab. "+
		"Reply with a single JSON object and nothing else.", stage, lab)
}

func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		if int64(int(v)) != v {
			return 0, false
		}
		return int(v), true
	case float64:
		if math.IsNaN(v) || v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// ValidateBaseURL normalizes an http(s) endpoint. An empty string is valid
// and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ClampTimeout keeps timeout inside [MinTimeout, MaxTimeout]. Zero or
// negative values return zero, meaning the SDK default.
func ClampTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return 0
	case timeout < MinTimeout:
		return MinTimeout
	case timeout > MaxTimeout:
		return MaxTimeout
	default:
		return timeout
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// modelHolder guards the model name shared by a provider and SetModel.
type modelHolder struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the current model.
func (m *modelHolder) GetModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// SetModel replaces the current model.
func (m *modelHolder) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// tokensOr returns reported when positive and an estimate of text
// otherwise.
func tokensOr(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return EstimateTokens(text)
}
