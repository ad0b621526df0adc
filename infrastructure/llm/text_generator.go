package llm

import (
	"context"
	"errors"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/ahrav/go-autolab/internal/ports"
)

// TextGenerator adapts a ports.LLMClient to ports.TextGenerator. It makes
// exactly one Complete call per Generate and never retries.
type TextGenerator struct {
	client ports.LLMClient
	logger *zap.Logger
}

var _ ports.TextGenerator = (*TextGenerator)(nil)

// NewTextGenerator wraps client. A nil logger is replaced by a no-op one.
func NewTextGenerator(client ports.LLMClient, logger *zap.Logger) (*TextGenerator, error) {
	if client == nil {
		return nil, errors.New("llm client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextGenerator{client: client, logger: logger}, nil
}

// Generate passes the context map through as request options. Failures
// and blank replies come back as *ports.LLMError.
func (g *TextGenerator) Generate(ctx context.Context, prompt string, hints map[string]any) (string, error) {
	stage, _ := hints["stage"].(string)
	operation := "generate"
	if stage != "" {
		operation += ":" + stage
	}

	response, err := g.client.Complete(ctx, prompt, maps.Clone(hints))
	if err != nil {
		g.logger.Debug("text generation failed",
			zap.String("model", g.client.GetModel()),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return "", ports.NewLLMError(g.client.GetModel(), operation, err)
	}
	if strings.TrimSpace(response) == "" {
		return "", ports.NewLLMError(g.client.GetModel(), operation, ports.ErrInvalidResponse)
	}
	return response, nil
}
