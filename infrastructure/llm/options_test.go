package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }

	tests := []struct {
		name string
		opts map[string]any
		want RequestOptions
	}{
		{
			name: "nil options use defaults",
			opts: nil,
			want: RequestOptions{Model: "default", MaxTokens: DefaultMaxTokens},
		},
		{
			name: "stage hints build a system prompt",
			opts: map[string]any{"stage": "critic", "lab": "SafetyLab", "temperature": 0.3, "max_tokens": 900},
			want: RequestOptions{
				Model:       "default",
				MaxTokens:   900,
				Temperature: ptr(0.3),
				Stage:       "critic",
				Lab:         "SafetyLab",
				System: "You are the critic stage of SafetyLab, an autonomous-driving research lab. " +
					"Reply with a single JSON object and nothing else.",
			},
		},
		{
			name: "explicit system wins over stage",
			opts: map[string]any{"stage": "planner", "system": "be brief", "model": "other"},
			want: RequestOptions{Model: "other", MaxTokens: DefaultMaxTokens, Stage: "planner", System: "be brief"},
		},
		{
			name: "out of range values fall back",
			opts: map[string]any{"temperature": 3.5, "max_tokens": -2},
			want: RequestOptions{Model: "default", MaxTokens: DefaultMaxTokens},
		},
		{
			name: "whole float max tokens accepted",
			opts: map[string]any{"max_tokens": 600.0},
			want: RequestOptions{Model: "default", MaxTokens: 600},
		},
		{
			name: "fractional max tokens rejected",
			opts: map[string]any{"max_tokens": 600.5},
			want: RequestOptions{Model: "default", MaxTokens: DefaultMaxTokens},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRequestOptions(tt.opts, "default"))
		})
	}
}

func TestRequestOptions_WantsJSON(t *testing.T) {
	assert.True(t, ParseRequestOptions(map[string]any{"stage": "synthesizer"}, "m").WantsJSON())
	assert.False(t, ParseRequestOptions(nil, "m").WantsJSON())
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "https://api.example.com/v1", want: "https://api.example.com/v1"},
		{in: "http://localhost:8080", want: "http://localhost:8080"},
		{in: "ftp://example.com", wantErr: true},
		{in: "example.com", wantErr: true},
		{in: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateBaseURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), ClampTimeout(0))
	assert.Equal(t, time.Duration(0), ClampTimeout(-time.Second))
	assert.Equal(t, MinTimeout, ClampTimeout(time.Millisecond))
	assert.Equal(t, 30*time.Second, ClampTimeout(30*time.Second))
	assert.Equal(t, MaxTimeout, ClampTimeout(time.Hour))
}
