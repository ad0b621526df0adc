package units

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

var _ ports.Unit = (*ReaderUnit)(nil)

// Sentinels emitted when no deployment-note clause matches.
const (
	NoFailureModes = "No specific failure modes documented"
	NoLimitations  = "No specific limitations documented"
)

// fieldRule extracts one reading-template field from a paper.
type fieldRule func(p domain.Paper) any

// extractionRules maps reading-template field names to their rule. New
// fields are added here; names without a rule are ignored.
var extractionRules = map[string]fieldRule{
	"method_name": func(p domain.Paper) any {
		name, _, _ := strings.Cut(p.Title, ":")
		return name
	},
	"safety_guarantees": metricSubset("collision_rate", "safety_violations", "safety_score"),
	"robustness_metrics": metricSubset(
		"detection_accuracy_rain", "detection_accuracy_fog", "worst_case_performance",
	),
	"performance_metrics": func(p domain.Paper) any {
		out := pickMetrics(p.KeyResults, "fps", "latency_ms", "planning_time_ms")
		for _, k := range []string{"nuscenes_score", "map_score"} {
			if v, ok := p.KeyResults[k]; ok && isTruthy(v) {
				out["accuracy"] = v
				break
			}
		}
		return out
	},
	"computational_cost": metricSubset("fps", "latency_ms"),
	"benchmark_results": func(p domain.Paper) any {
		out := maps.Clone(p.KeyResults)
		if out == nil {
			out = map[string]any{}
		}
		return out
	},
	"deployment_notes": func(p domain.Paper) any { return p.DeploymentNotes },
	"failure_modes": clauseFilter(NoFailureModes, "requires", "limited", "fails", "degrades"),
	"limitations":   clauseFilter(NoLimitations, "requires", "limited", "only suitable", "not suitable"),
	"scalability": func(p domain.Paper) any {
		if strings.Contains(strings.ToLower(p.DeploymentNotes), "scalable") {
			return "scalable"
		}
		return "limited"
	},
}

// IsReadingField reports whether field has an extraction rule.
func IsReadingField(field string) bool {
	_, ok := extractionRules[field]
	return ok
}

func metricSubset(keys ...string) fieldRule {
	return func(p domain.Paper) any { return pickMetrics(p.KeyResults, keys...) }
}

// pickMetrics copies the listed keys that are present in results.
func pickMetrics(results map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := results[k]; ok {
			out[k] = v
		}
	}
	return out
}

func isTruthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	f, ok := domain.AsFloat(v)
	return ok && f != 0
}

// clauseFilter splits the deployment notes on ";" and keeps the trimmed
// clauses containing any keyword, case-insensitively.
func clauseFilter(sentinel string, keywords ...string) fieldRule {
	return func(p domain.Paper) any {
		var kept []string
		for _, clause := range strings.Split(p.DeploymentNotes, ";") {
			lower := strings.ToLower(clause)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					kept = append(kept, strings.TrimSpace(clause))
					break
				}
			}
		}
		if len(kept) == 0 {
			return []string{sentinel}
		}
		return kept
	}
}

// ReaderUnit reshapes each retrieved paper by the genome reading template.
// It reads KeyPapers and KeyGenome and writes KeyExtracted.
type ReaderUnit struct {
	name string
}

// NewReaderUnit creates a ReaderUnit.
func NewReaderUnit(name string) (*ReaderUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &ReaderUnit{name: name}, nil
}

// Name returns the unit identifier.
func (u *ReaderUnit) Name() string { return u.name }

// Execute extracts one ExtractedInfo per paper, in paper order.
func (u *ReaderUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	papers, ok := domain.Get(state, domain.KeyPapers)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyPapers, u.name)
	}
	genome, ok := domain.Get(state, domain.KeyGenome)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyGenome, u.name)
	}

	extracted := ExtractAll(papers, genome.ReadingTemplate.ExtractFields)
	return domain.With(state, domain.KeyExtracted, extracted), nil
}

// Validate always succeeds; the reader has no configuration.
func (u *ReaderUnit) Validate() error { return nil }

// ExtractAll applies the extraction table to every paper.
func ExtractAll(papers []domain.Paper, fields []string) []domain.ExtractedInfo {
	out := make([]domain.ExtractedInfo, 0, len(papers))
	for _, p := range papers {
		out = append(out, Extract(p, fields))
	}
	return out
}

// Extract builds the ExtractedInfo of one paper. Unknown field names are
// skipped silently.
func Extract(p domain.Paper, fields []string) domain.ExtractedInfo {
	info := domain.ExtractedInfo{
		Title:          p.Title,
		Authors:        p.Authors,
		Venue:          p.Venue,
		Year:           p.Year,
		MethodCategory: p.MethodCategory,
		RelevanceScore: p.RelevanceScore,
		Fields:         make(map[string]any, len(fields)),
	}
	for _, field := range fields {
		if rule, ok := extractionRules[field]; ok {
			info.Fields[field] = rule(p)
		}
	}
	return info
}

// CreateReaderUnit is the registry factory for ReaderUnit.
func CreateReaderUnit(id string, config map[string]any) (*ReaderUnit, error) {
	var none struct{}
	if err := decodeParams(config, &none); err != nil {
		return nil, fmt.Errorf("reader takes no parameters: %w", err)
	}
	return NewReaderUnit(id)
}
