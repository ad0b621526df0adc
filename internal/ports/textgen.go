package ports

import "context"

// TextGenerator is the text-generation collaborator every stage may
// consult.
//
// The contract is deliberately weak: Generate may fail, be slow, or return
// text that is not the JSON a stage asked for. Every caller owns a
// deterministic fallback and must never let a Generate failure escape as
// its own error. Callers make exactly one call per stage and never retry.
type TextGenerator interface {
	// Generate returns the text produced for prompt. The context map
	// carries request hints such as "stage", "lab" or "max_tokens".
	Generate(ctx context.Context, prompt string, context map[string]any) (string, error)
}

// TextGeneratorFunc adapts a plain function to TextGenerator.
type TextGeneratorFunc func(ctx context.Context, prompt string, context map[string]any) (string, error)

// Generate calls f.
func (f TextGeneratorFunc) Generate(ctx context.Context, prompt string, context map[string]any) (string, error) {
	return f(ctx, prompt, context)
}
