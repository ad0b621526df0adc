package units

import (
	"context"
	"fmt"
	"text/template"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

var _ ports.Unit = (*SynthesizerUnit)(nil)

// Synthesis sizes.
const (
	// PromptPaperCount is how many critiqued papers the prompt shows.
	PromptPaperCount = 5

	// SynthesisTopPapers is how many papers the synthesis references.
	SynthesisTopPapers = 3

	DefaultSynthesizerMaxTokens   = 600
	DefaultSynthesizerTemperature = 0.4

	defaultAudience = "engineers"
	defaultEmphasis = "balanced"
	confidenceMed   = "medium"
)

const defaultSynthesizerPrompt = `You are a research synthesizer for {{.Lab}}.

Scenario: {{.Scenario}}
Event Context:
- Type: {{.EventType}}
- Severity: {{.Severity}}

Research Questions:
{{json .Questions}}

Top Papers Analyzed:
{{json .Papers}}

Audience: {{.Audience}}
Emphasis: {{.Emphasis}}

Synthesize the research findings into actionable recommendations.

Return JSON format:
{"summary": "brief overview", "key_methods": ["method"], "deployment_recommendations": ["rec"], "trade_offs": {"aspect": "description"}, "confidence_level": "high/medium/low"}`

// SynthesizerConfig configures the SynthesizerUnit.
type SynthesizerConfig struct {
	Prompt      string  `yaml:"prompt" json:"prompt" validate:"required,min=20"`
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`
	// MaxTokens applies when the genome style sets no token budget.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=16,max=8192"`
}

// DefaultSynthesizerConfig returns the synthesizer configuration used by labs.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		Prompt:      defaultSynthesizerPrompt,
		Temperature: DefaultSynthesizerTemperature,
		MaxTokens:   DefaultSynthesizerMaxTokens,
	}
}

type synthesisPayload struct {
	Summary                   string            `json:"summary" validate:"required"`
	KeyMethods                []string          `json:"key_methods"`
	DeploymentRecommendations []string          `json:"deployment_recommendations"`
	TradeOffs                 map[string]string `json:"trade_offs"`
	ConfidenceLevel           string            `json:"confidence_level" validate:"omitempty,oneof=high medium low"`
}

type promptPaper struct {
	Title      string   `json:"title"`
	Score      float64  `json:"score"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// SynthesizerUnit reduces the critiqued papers into a domain.Synthesis. It
// reads KeyResearchPlan, KeyCritiqued, KeyEvent, KeyGenome and KeyLabName
// and writes KeySynthesis.
type SynthesizerUnit struct {
	name   string
	config SynthesizerConfig
	gen    ports.TextGenerator
	prompt *template.Template
}

// NewSynthesizerUnit creates a SynthesizerUnit. gen may be nil.
func NewSynthesizerUnit(name string, gen ports.TextGenerator, config SynthesizerConfig) (*SynthesizerUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	tmpl, err := parsePrompt("synthesizer", config.Prompt)
	if err != nil {
		return nil, err
	}
	return &SynthesizerUnit{name: name, config: config, gen: gen, prompt: tmpl}, nil
}

// Name returns the unit identifier.
func (u *SynthesizerUnit) Name() string { return u.name }

// Execute produces the synthesis and always attaches the lab name, event
// type, paper count and the top three papers, whichever path produced it.
func (u *SynthesizerUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	plan, ok := domain.Get(state, domain.KeyResearchPlan)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyResearchPlan, u.name)
	}
	papers, ok := domain.Get(state, domain.KeyCritiqued)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyCritiqued, u.name)
	}
	event, ok := domain.Get(state, domain.KeyEvent)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyEvent, u.name)
	}
	genome, ok := domain.Get(state, domain.KeyGenome)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyGenome, u.name)
	}
	lab, _ := domain.Get(state, domain.KeyLabName)

	var payload synthesisPayload
	if err := u.generate(ctx, lab, plan, papers, event, genome.SynthesisStyle, &payload); err != nil {
		payload = fallbackSynthesis(lab, event.Type, papers)
		state = state.AppendFallback(TypeSynthesizer)
	}
	if payload.ConfidenceLevel == "" {
		payload.ConfidenceLevel = confidenceMed
	}

	synthesis := domain.Synthesis{
		Summary:                   payload.Summary,
		KeyMethods:                payload.KeyMethods,
		DeploymentRecommendations: payload.DeploymentRecommendations,
		TradeOffs:                 payload.TradeOffs,
		ConfidenceLevel:           payload.ConfidenceLevel,
		LabName:                   lab,
		EventType:                 string(event.Type),
		NumPapersAnalyzed:         len(papers),
		TopPapers:                 topPapers(papers, SynthesisTopPapers),
	}
	return domain.With(state, domain.KeySynthesis, synthesis), nil
}

func (u *SynthesizerUnit) generate(
	ctx context.Context,
	lab string,
	plan domain.ResearchPlan,
	papers []domain.CritiquedPaper,
	event domain.Event,
	style domain.SynthesisStyle,
	out *synthesisPayload,
) error {
	shown := make([]promptPaper, 0, PromptPaperCount)
	for _, p := range papers[:min(len(papers), PromptPaperCount)] {
		shown = append(shown, promptPaper{
			Title:      p.Title,
			Score:      p.Critique.OverallScore,
			Strengths:  p.Critique.Strengths,
			Weaknesses: p.Critique.Weaknesses,
		})
	}

	audience, emphasis := style.Audience, style.Emphasis
	if audience == "" {
		audience = defaultAudience
	}
	if emphasis == "" {
		emphasis = defaultEmphasis
	}

	prompt, err := renderPrompt(u.prompt, struct {
		Lab, Scenario, EventType, Severity, Audience, Emphasis string
		Questions                                              []string
		Papers                                                 []promptPaper
	}{
		Lab:       lab,
		Scenario:  titleCase(event.Type.Words()),
		EventType: string(event.Type),
		Severity:  string(event.EffectiveSeverity()),
		Audience:  audience,
		Emphasis:  emphasis,
		Questions: plan.SubQuestions,
		Papers:    shown,
	})
	if err != nil {
		return err
	}

	maxTokens := u.config.MaxTokens
	if style.MaxTokens > 0 {
		maxTokens = style.MaxTokens
	}
	return generateJSON(ctx, u.gen, prompt, stageHints(TypeSynthesizer, lab, u.config.Temperature, maxTokens), out)
}

// fallbackSynthesis builds the lab-specific synthesis from the top three
// papers.
func fallbackSynthesis(lab string, eventType domain.EventType, papers []domain.CritiquedPaper) synthesisPayload {
	top := papers[:min(len(papers), SynthesisTopPapers)]

	methods := make([]string, 0, len(top))
	var recs []string
	for _, p := range top {
		method, ok := p.FieldString("method_name")
		if !ok {
			method = p.Title
		}
		methods = append(methods, method)
		if notes, ok := p.FieldString("deployment_notes"); ok && notes != "" {
			recs = append(recs, notes)
		}
	}
	if len(recs) == 0 {
		recs = []string{"Conduct thorough testing before deployment"}
	}

	scenario := string(eventType)
	if scenario == "" {
		scenario = "this scenario"
	}

	out := synthesisPayload{
		KeyMethods:                methods,
		DeploymentRecommendations: recs,
		ConfidenceLevel:           confidenceMed,
	}
	if lab == domain.SafetyLab {
		out.Summary = fmt.Sprintf("For %s, prioritize methods with strong safety guarantees and robustness.", scenario)
		out.TradeOffs = map[string]string{
			"safety_vs_performance":     "Higher safety guarantees may reduce performance",
			"complexity_vs_reliability": "More complex verification increases reliability but adds overhead",
		}
		return out
	}
	out.Summary = fmt.Sprintf("For %s, prioritize high-performance methods with real-time capability.", scenario)
	out.TradeOffs = map[string]string{
		"performance_vs_safety": "Higher performance may sacrifice some safety guarantees",
		"accuracy_vs_speed":     "Faster inference may reduce accuracy slightly",
	}
	return out
}

func topPapers(papers []domain.CritiquedPaper, n int) []domain.TopPaper {
	out := make([]domain.TopPaper, 0, n)
	for _, p := range papers[:min(len(papers), n)] {
		out = append(out, domain.TopPaper{
			Title:          p.Title,
			Score:          p.Critique.OverallScore,
			MethodCategory: p.MethodCategory,
		})
	}
	return out
}

// Validate checks the unit configuration.
func (u *SynthesizerUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return nil
}

// CreateSynthesizerUnit is the registry factory for SynthesizerUnit.
func CreateSynthesizerUnit(id string, config map[string]any) (*SynthesizerUnit, error) {
	gen, err := textGeneratorFrom(config)
	if err != nil {
		return nil, err
	}
	cfg := DefaultSynthesizerConfig()
	if err := decodeParams(config, &cfg); err != nil {
		return nil, err
	}
	return NewSynthesizerUnit(id, gen, cfg)
}
