package application

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-autolab/infrastructure/llm"
	"github.com/ahrav/go-autolab/infrastructure/units"
)

// stageParams lists the parameters each stage type accepts. Types absent
// from the map take none.
var stageParams = map[string][]string{
	units.TypePlanner:     {"prompt", "temperature", "max_tokens"},
	units.TypeRetriever:   {"max_results"},
	units.TypeCritic:      {"prompt", "temperature", "max_tokens"},
	units.TypeSynthesizer: {"prompt", "temperature", "max_tokens"},
}

// ValidateStageParameters checks the parameters of one stage before any
// unit is built, so a bad config file fails at load time rather than at
// the first analysis.
func ValidateStageParameters(stageType string, params yaml.Node) error {
	if params.IsZero() {
		return nil
	}

	var paramMap map[string]any
	if err := params.Decode(&paramMap); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}

	allowed := stageParams[stageType]
	for key := range paramMap {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("%s does not accept parameter %q", stageType, key)
		}
	}

	if temp, ok := paramMap["temperature"]; ok {
		v, ok := asNumber(temp)
		if !ok {
			return fmt.Errorf("temperature must be a number")
		}
		if v < 0 || v > 2 {
			return fmt.Errorf("temperature must be between 0 and 2")
		}
	}

	if tokens, ok := paramMap["max_tokens"]; ok {
		v, ok := tokens.(int)
		if !ok || v < 16 || v > 8192 {
			return fmt.Errorf("max_tokens must be an integer between 16 and 8192")
		}
	}

	if results, ok := paramMap["max_results"]; ok {
		v, ok := results.(int)
		if !ok || v < 1 || v > units.MaxRetrievedPapers {
			return fmt.Errorf("max_results must be an integer between 1 and %d", units.MaxRetrievedPapers)
		}
	}

	if prompt, ok := paramMap["prompt"]; ok {
		if s, ok := prompt.(string); !ok || s == "" {
			return fmt.Errorf("prompt must be a non-empty string")
		}
	}

	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// validateStages enforces the fixed stage order, unique ids and valid
// parameters.
func validateStages(stages []StageConfig) error {
	if len(stages) != len(LabStages) {
		return fmt.Errorf("analysis.stages must list %d stages, got %d", len(LabStages), len(stages))
	}
	seen := make(map[string]struct{}, len(stages))
	for i, stage := range stages {
		if stage.Type != LabStages[i] {
			return fmt.Errorf("stage %d must be %s, got %s", i, LabStages[i], stage.Type)
		}
		if _, dup := seen[stage.ID]; dup {
			return fmt.Errorf("duplicate stage ID %q", stage.ID)
		}
		seen[stage.ID] = struct{}{}

		if err := ValidateStageParameters(stage.Type, stage.Parameters); err != nil {
			return fmt.Errorf("stage %s parameter validation failed: %w", stage.ID, err)
		}
	}
	return nil
}

// registerCustomValidators adds the llmprovider tag.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("llmprovider", validateLLMProvider); err != nil {
		return fmt.Errorf("failed to register llmprovider validator: %w", err)
	}
	return nil
}

// validateLLMProvider accepts provider names with a registered factory.
func validateLLMProvider(fl validator.FieldLevel) bool {
	return llm.IsRegisteredProvider(fl.Field().String())
}
