// Package units implements the lab stages (Planner, Retriever, Reader,
// Critic, Synthesizer) and the Judge as ports.Unit values.
//
// Every stage that consults the text-generation collaborator owns a
// deterministic fallback. A failed, empty or malformed generation is
// recorded in the state under domain.KeyFallbacks and never returned as
// an error.
package units

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-autolab/internal/ports"
)

// Unit type names understood by the registry. They double as the stage
// names recorded when a unit falls back.
const (
	TypePlanner     = "planner"
	TypeRetriever   = "retriever"
	TypeReader      = "reader"
	TypeCritic      = "critic"
	TypeSynthesizer = "synthesizer"
	TypeJudge       = "judge"
)

// Dependency keys a registry injects into factory configs.
const (
	ConfigKeyTextGenerator = "text_generator"
	ConfigKeyCatalog       = "catalog"
)

// Common errors returned by unit constructors and the generation helper.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrNoTextGenerator marks a stage that runs without a collaborator.
	// It only ever triggers the fallback path.
	ErrNoTextGenerator = errors.New("no text generator configured")

	// ErrMalformedOutput is returned when generated text does not hold the
	// JSON payload a stage asked for.
	ErrMalformedOutput = errors.New("malformed generator output")
)

// Package-level validator instance for configuration and payload validation.
var validate = validator.New()

// generateJSON makes exactly one Generate call and decodes the first JSON
// object of the reply into out, which is then validated with its struct
// tags. Any failure means the caller must use its fallback.
func generateJSON(
	ctx context.Context,
	gen ports.TextGenerator,
	prompt string,
	hints map[string]any,
	out any,
) error {
	if gen == nil {
		return ErrNoTextGenerator
	}

	response, err := gen.Generate(ctx, prompt, hints)
	if err != nil {
		return err
	}

	raw := extractJSON(response)
	if raw == "" {
		return fmt.Errorf("%w: no JSON object in %d chars", ErrMalformedOutput, len(response))
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// extractJSON returns the first JSON object in response. It understands
// fenced code blocks and prose around a bare object.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```"); start != -1 {
		body := response[start+3:]
		if nl := strings.Index(body, "\n"); nl != -1 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end != -1 {
			if candidate := strings.TrimSpace(body[:end]); strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// renderPrompt executes tmpl with data.
func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// promptFuncs are available to every stage prompt template.
var promptFuncs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		return string(b), err
	},
}

// parsePrompt compiles a stage prompt template.
func parsePrompt(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s prompt template: %w", name, err)
	}
	return tmpl, nil
}

// decodeParams copies the plain configuration values of a factory config
// map into out through YAML, so numeric and string forms decode the same
// way they would from a config file. Injected dependencies are skipped and
// unknown keys are rejected.
func decodeParams(config map[string]any, out any) error {
	params := make(map[string]any, len(config))
	for k, v := range config {
		if k == ConfigKeyTextGenerator || k == ConfigKeyCatalog {
			continue
		}
		params[k] = v
	}
	if len(params) == 0 {
		return nil
	}

	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	return nil
}

// textGeneratorFrom returns the optional collaborator injected into a
// factory config.
func textGeneratorFrom(config map[string]any) (ports.TextGenerator, error) {
	raw, ok := config[ConfigKeyTextGenerator]
	if !ok || raw == nil {
		return nil, nil
	}
	gen, ok := raw.(ports.TextGenerator)
	if !ok {
		return nil, fmt.Errorf("%s must implement ports.TextGenerator, got %T", ConfigKeyTextGenerator, raw)
	}
	return gen, nil
}

// stageHints builds the context map passed to Generate.
func stageHints(stage, lab string, temperature float64, maxTokens int) map[string]any {
	return map[string]any{
		"stage":       stage,
		"lab":         lab,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
}

// titleCase renders s in English title case. Casers are stateful, so one
// is built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
