package units

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

var _ ports.Unit = (*JudgeUnit)(nil)

// TieMargin is the score gap below which the Judge declares a tie.
const TieMargin = 0.05

// RubricComponent is one weighted axis of the Judge rubric with the share
// each lab receives.
type RubricComponent struct {
	Name        string
	Weight      float64
	Safety      float64
	Performance float64
}

// relevanceSplit is the severity-dependent share of the relevance component.
var relevanceSplit = map[domain.Severity][2]float64{
	domain.SeverityHigh:   {0.28, 0.22},
	domain.SeverityMedium: {0.25, 0.25},
	domain.SeverityLow:    {0.22, 0.28},
}

// fixedRubric holds the components that do not depend on the event.
var fixedRubric = []RubricComponent{
	{Name: "safety_quality", Weight: 0.25, Safety: 0.23, Performance: 0.15},
	{Name: "computational_performance", Weight: 0.20, Safety: 0.12, Performance: 0.18},
	{Name: "practicality", Weight: 0.15, Safety: 0.13, Performance: 0.14},
	{Name: "innovation", Weight: 0.10, Safety: 0.08, Performance: 0.08},
}

// Rubric returns the five rubric components for an event severity.
func Rubric(severity domain.Severity) []RubricComponent {
	split, ok := relevanceSplit[severity]
	if !ok {
		split = relevanceSplit[domain.SeverityMedium]
	}
	return append([]RubricComponent{
		{Name: "relevance", Weight: 0.30, Safety: split[0], Performance: split[1]},
	}, fixedRubric...)
}

// Canned judge text. It does not depend on the syntheses being compared.
var (
	safetyStrengths       = []string{"Strong focus on safety guarantees", "Comprehensive failure mode analysis"}
	safetyWeaknesses      = []string{"May sacrifice some performance for safety"}
	performanceStrengths  = []string{"High-performance methods", "Strong benchmark results"}
	performanceWeaknesses = []string{"Less emphasis on edge cases"}
	improvementByLab      = map[string][]string{
		domain.SafetyLab:      {"Consider performance trade-offs more explicitly", "Include more real-world deployment examples"},
		domain.PerformanceLab: {"Incorporate more safety analysis", "Address failure modes more thoroughly"},
	}
)

// Judge compares the two lab syntheses for event with the fixed rubric.
// Scores are clamped to 1.0 and rounded to six decimals.
func Judge(safety, performance domain.Synthesis, event domain.Event) domain.JudgeDecision {
	severity := event.EffectiveSeverity()

	var safetyScore, performanceScore float64
	for _, c := range Rubric(severity) {
		safetyScore += c.Safety
		performanceScore += c.Performance
	}
	safetyScore = roundScore(math.Min(safetyScore, 1.0))
	performanceScore = roundScore(math.Min(performanceScore, 1.0))

	winner := decideWinner(safetyScore, performanceScore)

	recs := make(map[string][]string, len(improvementByLab))
	for lab, r := range improvementByLab {
		recs[lab] = slices.Clone(r)
	}

	return domain.JudgeDecision{
		Winner:                winner,
		SafetyScore:           safetyScore,
		PerformanceScore:      performanceScore,
		Reasoning:             judgeReasoning(event, severity, winner, safetyScore, performanceScore),
		SafetyStrengths:       slices.Clone(safetyStrengths),
		SafetyWeaknesses:      slices.Clone(safetyWeaknesses),
		PerformanceStrengths:  slices.Clone(performanceStrengths),
		PerformanceWeaknesses: slices.Clone(performanceWeaknesses),
		Recommendations:       recs,
	}
}

// decideWinner compares the gap at the six-decimal precision scores are
// reported with, so 0.83 against 0.78 is a gap of exactly 0.05.
func decideWinner(safety, performance float64) domain.Winner {
	switch {
	case roundScore(math.Abs(safety-performance)) < TieMargin:
		return domain.WinnerTie
	case safety > performance:
		return domain.WinnerSafety
	default:
		return domain.WinnerPerformance
	}
}

func judgeReasoning(event domain.Event, severity domain.Severity, winner domain.Winner, safety, performance float64) string {
	scenario := titleCase(event.Type.Words())
	scores := fmt.Sprintf("%s %.1f%% vs %s %.1f%%", domain.SafetyLab, safety*100, domain.PerformanceLab, performance*100)
	if winner == domain.WinnerTie {
		return fmt.Sprintf("For %s with %s severity, neither lab was clearly more relevant (%s); result: %s.",
			scenario, severity, scores, winner)
	}
	return fmt.Sprintf("For %s with %s severity, %s provided more relevant recommendations (%s).",
		scenario, severity, winner, scores)
}

func roundScore(v float64) float64 { return math.Round(v*1e6) / 1e6 }

// JudgeUnit runs Judge over the merged lab outputs. It reads KeyLabOutputs
// and KeyEvent and writes KeyJudgeDecision.
type JudgeUnit struct {
	name string
}

// NewJudgeUnit creates a JudgeUnit.
func NewJudgeUnit(name string) (*JudgeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &JudgeUnit{name: name}, nil
}

// Name returns the unit identifier.
func (u *JudgeUnit) Name() string { return u.name }

// Execute requires an output for both labs.
func (u *JudgeUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	outputs, ok := domain.Get(state, domain.KeyLabOutputs)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyLabOutputs, u.name)
	}
	event, ok := domain.Get(state, domain.KeyEvent)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyEvent, u.name)
	}
	safety, ok := outputs[domain.SafetyLab]
	if !ok {
		return state, fmt.Errorf("unit %s: no output from %s", u.name, domain.SafetyLab)
	}
	performance, ok := outputs[domain.PerformanceLab]
	if !ok {
		return state, fmt.Errorf("unit %s: no output from %s", u.name, domain.PerformanceLab)
	}

	decision := Judge(safety.Synthesis, performance.Synthesis, event)
	return domain.With(state, domain.KeyJudgeDecision, decision), nil
}

// Validate always succeeds; the rubric is fixed.
func (u *JudgeUnit) Validate() error { return nil }

// CreateJudgeUnit is the registry factory for JudgeUnit.
func CreateJudgeUnit(id string, config map[string]any) (*JudgeUnit, error) {
	var none struct{}
	if err := decodeParams(config, &none); err != nil {
		return nil, fmt.Errorf("judge takes no parameters: %w", err)
	}
	return NewJudgeUnit(id)
}
