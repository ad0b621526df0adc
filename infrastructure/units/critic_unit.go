package units

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"text/template"

	"github.com/agnivade/levenshtein"
	"gonum.org/v1/gonum/stat"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

var _ ports.Unit = (*CriticUnit)(nil)

// Critic scoring constants.
const (
	// NeutralScore is the overall score when the weight sum is not
	// positive, and the score of a declared dimension the generator left out.
	NeutralScore = 0.5

	// DefaultHeuristicScore scores dimensions the heuristic table does not know.
	DefaultHeuristicScore = 0.75

	// MaxDimensionDistance is the largest edit distance at which a
	// generated score key is matched to a declared dimension.
	MaxDimensionDistance = 2

	DefaultCriticMaxTokens   = 512
	DefaultCriticTemperature = 0.2
)

// Fallback critique text.
var (
	fallbackStrengths  = []string{"Well-documented methodology", "Clear experimental results"}
	fallbackWeaknesses = []string{"Limited real-world validation"}
)

// heuristicRules maps a critique dimension to the score it derives from a
// paper's extracted information. Dimensions without a rule score
// DefaultHeuristicScore.
var heuristicRules = map[string]func(domain.ExtractedInfo) float64{
	"robustness":               metricOr("robustness_metrics", "detection_accuracy_rain", 0.7),
	"accuracy":                 metricOr("performance_metrics", "accuracy", 0.75),
	"speed":                    fpsScore("performance_metrics"),
	"computational_efficiency": fpsScore("computational_cost"),
}

// metricOr reads group.metric, using fallback when it is absent or zero.
func metricOr(group, metric string, fallback float64) func(domain.ExtractedInfo) float64 {
	return func(info domain.ExtractedInfo) float64 {
		if v, ok := info.FieldMetric(group, metric); ok && v != 0 {
			return v
		}
		return fallback
	}
}

// fpsScore normalises frame rate against 60 fps. A missing rate counts as 30.
func fpsScore(group string) func(domain.ExtractedInfo) float64 {
	return func(info domain.ExtractedInfo) float64 {
		fps, ok := info.FieldMetric(group, "fps")
		if !ok {
			fps = 30
		}
		return math.Min(fps/60.0, 1.0)
	}
}

// HeuristicScores scores every dimension from the extraction table alone.
func HeuristicScores(info domain.ExtractedInfo, dimensions []string) map[string]float64 {
	scores := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		if rule, ok := heuristicRules[d]; ok {
			scores[d] = rule(info)
			continue
		}
		scores[d] = DefaultHeuristicScore
	}
	return scores
}

// OverallScore is the weight-averaged score over the declared dimensions.
// Missing weights count as 1.0 and missing scores as NeutralScore. A
// weight sum that is zero or negative yields NeutralScore.
func OverallScore(scores map[string]float64, focus domain.CritiqueFocus) float64 {
	if len(focus.Dimensions) == 0 {
		return NeutralScore
	}
	values := make([]float64, len(focus.Dimensions))
	weights := make([]float64, len(focus.Dimensions))
	sum := 0.0
	for i, d := range focus.Dimensions {
		s, ok := scores[d]
		if !ok {
			s = NeutralScore
		}
		values[i] = s
		weights[i] = focus.Weight(d)
		sum += weights[i]
	}
	if sum <= 0 {
		return NeutralScore
	}
	return stat.Mean(values, weights)
}

const defaultCriticPrompt = `You are a research critic for {{.Lab}}.

Paper: {{.Title}}
Method Category: {{.MethodCategory}}

Event Context:
- Type: {{.EventType}}
- Severity: {{.Severity}}

Extracted Information:
{{json .Fields}}

Evaluate this paper on the following dimensions: {{join .Dimensions ", "}}

Return JSON format:
{"scores": {"dimension": 0.0}, "strengths": ["strength"], "weaknesses": ["weakness"]}
Every score must lie between 0.0 and 1.0.`

// CriticConfig configures the CriticUnit.
type CriticConfig struct {
	Prompt      string  `yaml:"prompt" json:"prompt" validate:"required,min=20"`
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens" validate:"required,min=16,max=8192"`
}

// DefaultCriticConfig returns the critic configuration used by labs.
func DefaultCriticConfig() CriticConfig {
	return CriticConfig{
		Prompt:      defaultCriticPrompt,
		Temperature: DefaultCriticTemperature,
		MaxTokens:   DefaultCriticMaxTokens,
	}
}

// critiquePayload is the generated critique of one paper.
type critiquePayload struct {
	Scores     map[string]float64 `json:"scores" validate:"required,min=1,dive,min=0,max=1"`
	Strengths  []string           `json:"strengths"`
	Weaknesses []string           `json:"weaknesses"`
}

// CriticUnit scores each extracted paper on the genome dimensions and
// sorts the papers by overall score. It reads KeyExtracted, KeyGenome,
// KeyEvent and KeyLabName and writes KeyCritiqued.
type CriticUnit struct {
	name   string
	config CriticConfig
	gen    ports.TextGenerator
	prompt *template.Template
}

// NewCriticUnit creates a CriticUnit. gen may be nil.
func NewCriticUnit(name string, gen ports.TextGenerator, config CriticConfig) (*CriticUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	tmpl, err := parsePrompt("critic", config.Prompt)
	if err != nil {
		return nil, err
	}
	return &CriticUnit{name: name, config: config, gen: gen, prompt: tmpl}, nil
}

// Name returns the unit identifier.
func (u *CriticUnit) Name() string { return u.name }

// Execute critiques papers one at a time, in order. Papers whose
// generation fails get the heuristic critique; the stage is recorded as a
// fallback once.
func (u *CriticUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	extracted, ok := domain.Get(state, domain.KeyExtracted)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyExtracted, u.name)
	}
	genome, ok := domain.Get(state, domain.KeyGenome)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyGenome, u.name)
	}
	event, ok := domain.Get(state, domain.KeyEvent)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyEvent, u.name)
	}
	lab, _ := domain.Get(state, domain.KeyLabName)

	focus := genome.CritiqueFocus
	critiqued := make([]domain.CritiquedPaper, 0, len(extracted))
	degraded := false
	for _, info := range extracted {
		critique, err := u.generate(ctx, lab, event, info, focus.Dimensions)
		if err != nil {
			critique = domain.Critique{
				Scores:     HeuristicScores(info, focus.Dimensions),
				Strengths:  slices.Clone(fallbackStrengths),
				Weaknesses: slices.Clone(fallbackWeaknesses),
			}
			degraded = true
		}
		critique.OverallScore = OverallScore(critique.Scores, focus)
		critiqued = append(critiqued, domain.CritiquedPaper{ExtractedInfo: info, Critique: critique})
	}

	SortByOverallScore(critiqued)

	if degraded {
		state = state.AppendFallback(TypeCritic)
	}
	return domain.With(state, domain.KeyCritiqued, critiqued), nil
}

func (u *CriticUnit) generate(
	ctx context.Context,
	lab string,
	event domain.Event,
	info domain.ExtractedInfo,
	dimensions []string,
) (domain.Critique, error) {
	prompt, err := renderPrompt(u.prompt, struct {
		Lab, Title, MethodCategory, EventType, Severity string
		Fields                                          map[string]any
		Dimensions                                      []string
	}{
		Lab:            lab,
		Title:          info.Title,
		MethodCategory: info.MethodCategory,
		EventType:      string(event.Type),
		Severity:       string(event.EffectiveSeverity()),
		Fields:         info.Fields,
		Dimensions:     dimensions,
	})
	if err != nil {
		return domain.Critique{}, err
	}

	var payload critiquePayload
	hints := stageHints(TypeCritic, lab, u.config.Temperature, u.config.MaxTokens)
	if err := generateJSON(ctx, u.gen, prompt, hints, &payload); err != nil {
		return domain.Critique{}, err
	}
	return domain.Critique{
		Scores:     MatchDimensions(payload.Scores, dimensions),
		Strengths:  payload.Strengths,
		Weaknesses: payload.Weaknesses,
	}, nil
}

// MatchDimensions maps generated score keys onto the declared dimensions.
// An exact key wins; otherwise the closest key within MaxDimensionDistance
// edits is used, ties going to the alphabetically first key. Dimensions
// with no match score NeutralScore.
func MatchDimensions(generated map[string]float64, dimensions []string) map[string]float64 {
	keys := slices.Sorted(maps.Keys(generated))
	out := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		if s, ok := generated[d]; ok {
			out[d] = s
			continue
		}
		best, bestDist := "", MaxDimensionDistance+1
		for _, k := range keys {
			if dist := levenshtein.ComputeDistance(d, k); dist < bestDist {
				best, bestDist = k, dist
			}
		}
		if best != "" {
			out[d] = generated[best]
			continue
		}
		out[d] = NeutralScore
	}
	return out
}

// SortByOverallScore orders papers by descending overall score, keeping
// the prior order of equal scores.
func SortByOverallScore(papers []domain.CritiquedPaper) {
	slices.SortStableFunc(papers, func(a, b domain.CritiquedPaper) int {
		return cmp.Compare(b.Critique.OverallScore, a.Critique.OverallScore)
	})
}

// Validate checks the unit configuration.
func (u *CriticUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return nil
}

// CreateCriticUnit is the registry factory for CriticUnit.
func CreateCriticUnit(id string, config map[string]any) (*CriticUnit, error) {
	gen, err := textGeneratorFrom(config)
	if err != nil {
		return nil, err
	}
	cfg := DefaultCriticConfig()
	if err := decodeParams(config, &cfg); err != nil {
		return nil, err
	}
	return NewCriticUnit(id, gen, cfg)
}
