// Package testutils provides deterministic collaborators for tests.
package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ahrav/go-autolab/internal/ports"
)

// ErrInjected is returned by mocks configured to fail.
var ErrInjected = errors.New("injected failure")

// MockResponse pairs a prompt pattern with the text returned for it.
type MockResponse struct {
	// Pattern is matched case-insensitively as a substring of the prompt.
	// An empty pattern matches every prompt.
	Pattern string
	// Stage, when set, restricts the response to calls whose "stage" hint
	// equals it.
	Stage string
	// Response is the generated text.
	Response string
	// TokensUsed is reported by MockLLMClient.
	TokensUsed int
}

// GenerateCall records one Generate invocation.
type GenerateCall struct {
	Prompt string
	Hints  map[string]any
}

// MockTextGenerator is a ports.TextGenerator with ordered pattern
// responses, call recording and an injectable failure. Responses are
// matched in the order they were added; the first match wins. With no
// match it returns a non-JSON sentence so callers exercise their
// fallback path.
type MockTextGenerator struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []GenerateCall
	failWith  error
	failStage string
}

// NewMockTextGenerator creates a generator with no canned responses.
func NewMockTextGenerator() *MockTextGenerator {
	return &MockTextGenerator{}
}

// AddResponse appends a response pattern.
func (m *MockTextGenerator) AddResponse(r MockResponse) *MockTextGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return m
}

// FailWith makes every call return err. A nil err clears the failure.
func (m *MockTextGenerator) FailWith(err error) *MockTextGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
	m.failStage = ""
	return m
}

// FailStage makes calls for one stage return ErrInjected.
func (m *MockTextGenerator) FailStage(stage string) *MockTextGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = ErrInjected
	m.failStage = stage
	return m
}

// Generate implements ports.TextGenerator.
func (m *MockTextGenerator) Generate(ctx context.Context, prompt string, hints map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, GenerateCall{Prompt: prompt, Hints: hints})
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stage, _ := hints["stage"].(string)
	if m.failWith != nil && (m.failStage == "" || m.failStage == stage) {
		return "", m.failWith
	}

	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if r.Stage != "" && r.Stage != stage {
			continue
		}
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r.Response, nil
		}
	}
	return "I am unable to produce structured output for this request.", nil
}

// Calls returns a copy of every recorded call.
func (m *MockTextGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// CallCount returns the number of Generate calls made.
func (m *MockTextGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// StageCalls returns the number of calls carrying the given stage hint.
func (m *MockTextGenerator) StageCalls(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if s, _ := c.Hints["stage"].(string); s == stage {
			n++
		}
	}
	return n
}

var _ ports.TextGenerator = (*MockTextGenerator)(nil)
