package units

import (
	"context"
	"fmt"
	"text/template"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

var _ ports.Unit = (*PlannerUnit)(nil)

// Default planner settings.
const (
	DefaultPlannerMaxTokens   = 512
	DefaultPlannerTemperature = 0.3
)

// defaultPlannerPrompt asks for a JSON research plan.
const defaultPlannerPrompt = `You are a research planner for {{.Lab}}.

Event Context:
- Type: {{.EventType}}
- Severity: {{.Severity}}
- Weather: {{.Weather}}
{{- if .RoadType}}
- Road: {{.RoadType}}
{{- end}}
{{- if .Description}}
- Description: {{.Description}}
{{- end}}

Lab Focus Areas: {{join .Keywords ", "}}
Evaluation Dimensions: {{join .Dimensions ", "}}

Generate a research plan with 3-5 specific sub-questions to investigate for this scenario.
Focus on {{.Lab}}'s priorities.

Return JSON format:
{"sub_questions": ["question1", "question2"], "search_strategy": "brief strategy description"}`

// PlannerConfig configures the PlannerUnit.
type PlannerConfig struct {
	// Prompt is the text/template used to ask for a plan.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required,min=20"`

	// Temperature is forwarded to the text generator.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`

	// MaxTokens bounds the generated plan.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=16,max=8192"`
}

// DefaultPlannerConfig returns the planner configuration used by labs.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Prompt:      defaultPlannerPrompt,
		Temperature: DefaultPlannerTemperature,
		MaxTokens:   DefaultPlannerMaxTokens,
	}
}

// planPayload is the generated part of a ResearchPlan.
type planPayload struct {
	SubQuestions   []string `json:"sub_questions" validate:"required,min=1,dive,required"`
	SearchStrategy string   `json:"search_strategy"`
}

// PlannerUnit turns the event and genome into a domain.ResearchPlan.
// It reads KeyEvent, KeyLabName and KeyGenome and writes KeyResearchPlan.
type PlannerUnit struct {
	name   string
	config PlannerConfig
	gen    ports.TextGenerator
	prompt *template.Template
}

// NewPlannerUnit creates a PlannerUnit. gen may be nil, in which case the
// unit always plans from its lab template.
func NewPlannerUnit(name string, gen ports.TextGenerator, config PlannerConfig) (*PlannerUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	tmpl, err := parsePrompt("planner", config.Prompt)
	if err != nil {
		return nil, err
	}
	return &PlannerUnit{name: name, config: config, gen: gen, prompt: tmpl}, nil
}

// Name returns the unit identifier.
func (u *PlannerUnit) Name() string { return u.name }

// Execute builds the research plan. Keywords and priority dimensions are
// always derived locally; only the sub-questions and search strategy come
// from the generator or the fallback template.
func (u *PlannerUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	event, ok := domain.Get(state, domain.KeyEvent)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyEvent, u.name)
	}
	lab, ok := domain.Get(state, domain.KeyLabName)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyLabName, u.name)
	}
	genome, ok := domain.Get(state, domain.KeyGenome)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyGenome, u.name)
	}

	plan := domain.ResearchPlan{
		LabName:            lab,
		EventType:          string(event.Type),
		Keywords:           PlanKeywords(genome, event),
		PriorityDimensions: append([]string(nil), genome.CritiqueFocus.Dimensions...),
	}

	var payload planPayload
	if err := u.generate(ctx, lab, event, genome, &payload); err != nil {
		payload = fallbackPlan(lab, event.Type)
		state = state.AppendFallback(TypePlanner)
	}
	plan.SubQuestions = payload.SubQuestions
	plan.SearchStrategy = payload.SearchStrategy

	return domain.With(state, domain.KeyResearchPlan, plan), nil
}

func (u *PlannerUnit) generate(
	ctx context.Context,
	lab string,
	event domain.Event,
	genome domain.GenomeData,
	out *planPayload,
) error {
	weather := event.Weather
	if weather == "" {
		weather = "clear"
	}
	prompt, err := renderPrompt(u.prompt, struct {
		Lab, EventType, Severity, Weather, RoadType, Description string
		Keywords, Dimensions                                     []string
	}{
		Lab:         lab,
		EventType:   string(event.Type),
		Severity:    string(event.EffectiveSeverity()),
		Weather:     weather,
		RoadType:    event.RoadType,
		Description: event.Description,
		Keywords:    genome.RetrievalPreferences.Keywords,
		Dimensions:  genome.CritiqueFocus.Dimensions,
	})
	if err != nil {
		return err
	}
	return generateJSON(ctx, u.gen, prompt, stageHints(TypePlanner, lab, u.config.Temperature, u.config.MaxTokens), out)
}

// Validate checks the unit configuration.
func (u *PlannerUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return nil
}

// PlanKeywords returns the genome keywords followed by the event type in
// words and, when present and not "clear", the weather condition.
func PlanKeywords(genome domain.GenomeData, event domain.Event) []string {
	keywords := make([]string, 0, len(genome.RetrievalPreferences.Keywords)+2)
	keywords = append(keywords, genome.RetrievalPreferences.Keywords...)
	if event.Type != "" {
		keywords = append(keywords, event.Type.Words())
	}
	if event.Weather != "" && event.Weather != "clear" {
		keywords = append(keywords, event.Weather)
	}
	return keywords
}

// fallbackPlan is the deterministic plan used when generation fails.
func fallbackPlan(lab string, eventType domain.EventType) planPayload {
	if lab == domain.SafetyLab {
		return planPayload{
			SubQuestions: []string{
				fmt.Sprintf("What are the safety-critical aspects of %s scenarios?", eventType),
				"What robust methods exist for handling this scenario?",
				"What are the failure modes and mitigation strategies?",
			},
			SearchStrategy: "Focus on safety verification and robustness",
		}
	}
	return planPayload{
		SubQuestions: []string{
			fmt.Sprintf("What are the SOTA methods for %s scenarios?", eventType),
			"How can we optimize performance for this scenario?",
			"What are the benchmark results for similar scenarios?",
		},
		SearchStrategy: "Focus on performance and efficiency",
	}
}

// CreatePlannerUnit is the registry factory for PlannerUnit.
func CreatePlannerUnit(id string, config map[string]any) (*PlannerUnit, error) {
	gen, err := textGeneratorFrom(config)
	if err != nil {
		return nil, err
	}
	cfg := DefaultPlannerConfig()
	if err := decodeParams(config, &cfg); err != nil {
		return nil, err
	}
	return NewPlannerUnit(id, gen, cfg)
}
