package domain

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Lab names. Exactly two labs exist and every genome belongs to one.
const (
	SafetyLab      = "SafetyLab"
	PerformanceLab = "PerformanceLab"
)

// LabNames lists both labs in the fixed order used for locking and output.
var LabNames = []string{SafetyLab, PerformanceLab}

// IsKnownLab reports whether name is SafetyLab or PerformanceLab.
func IsKnownLab(name string) bool {
	return slices.Contains(LabNames, name)
}

// InitialVersion is the version given to the root of every lineage.
const InitialVersion = "v0.1"

// GenomeData is the evolvable configuration of one lab. Weights are
// unbounded but conventionally lie in [0, 1].
type GenomeData struct {
	RetrievalPreferences RetrievalPreferences `json:"retrieval_preferences" yaml:"retrieval_preferences" validate:"required"`
	ReadingTemplate      ReadingTemplate      `json:"reading_template" yaml:"reading_template"`
	CritiqueFocus        CritiqueFocus        `json:"critique_focus" yaml:"critique_focus"`
	SynthesisStyle       SynthesisStyle       `json:"synthesis_style" yaml:"synthesis_style"`
}

// RetrievalPreferences steers the Retriever and seeds the Planner keywords.
type RetrievalPreferences struct {
	Keywords         []string           `json:"keywords" yaml:"keywords"`
	VenueWeights     map[string]float64 `json:"venue_weights" yaml:"venue_weights"`
	YearRange        YearRange          `json:"year_range" yaml:"year_range"`
	MethodCategories []string           `json:"method_categories,omitempty" yaml:"method_categories,omitempty"`
}

// YearRange is an inclusive publication year window.
type YearRange struct {
	Min int `json:"min" yaml:"min" validate:"min=0"`
	Max int `json:"max" yaml:"max" validate:"gtefield=Min"`
}

// Contains reports whether year lies inside the window, bounds included.
func (r YearRange) Contains(year int) bool {
	return year >= r.Min && year <= r.Max
}

// ReadingTemplate lists the fields the Reader extracts, in order.
type ReadingTemplate struct {
	ExtractFields []string `json:"extract_fields" yaml:"extract_fields"`
}

// CritiqueFocus declares the Critic dimensions and their weights.
type CritiqueFocus struct {
	Dimensions []string           `json:"dimensions" yaml:"dimensions"`
	Weights    map[string]float64 `json:"weights" yaml:"weights"`
}

// Weight returns the weight of dimension, defaulting to 1.0 when the
// weight map has no entry for it.
func (c CritiqueFocus) Weight(dimension string) float64 {
	if w, ok := c.Weights[dimension]; ok {
		return w
	}
	return 1.0
}

// WeightOrder returns the weight keys in a deterministic scan order:
// declared dimensions that carry a weight first, then any remaining
// weight keys sorted by name.
func (c CritiqueFocus) WeightOrder() []string {
	order := make([]string, 0, len(c.Weights))
	seen := make(map[string]struct{}, len(c.Weights))
	for _, d := range c.Dimensions {
		if _, ok := c.Weights[d]; !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		order = append(order, d)
	}
	for _, k := range slices.Sorted(maps.Keys(c.Weights)) {
		if _, ok := seen[k]; !ok {
			order = append(order, k)
		}
	}
	return order
}

// SynthesisStyle shapes the Synthesizer prompt.
type SynthesisStyle struct {
	Audience  string `json:"audience" yaml:"audience"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens" validate:"min=0"`
	Format    string `json:"format" yaml:"format"`
	Emphasis  string `json:"emphasis" yaml:"emphasis"`
}

// Clone returns a deep copy so evolution never aliases the source genome.
func (g GenomeData) Clone() GenomeData {
	out := g
	out.RetrievalPreferences.Keywords = slices.Clone(g.RetrievalPreferences.Keywords)
	out.RetrievalPreferences.VenueWeights = maps.Clone(g.RetrievalPreferences.VenueWeights)
	out.RetrievalPreferences.MethodCategories = slices.Clone(g.RetrievalPreferences.MethodCategories)
	out.ReadingTemplate.ExtractFields = slices.Clone(g.ReadingTemplate.ExtractFields)
	out.CritiqueFocus.Dimensions = slices.Clone(g.CritiqueFocus.Dimensions)
	out.CritiqueFocus.Weights = maps.Clone(g.CritiqueFocus.Weights)
	return out
}

// Genome is one immutable, versioned row of a lab lineage. Evolution
// appends a new row and never edits an existing one.
type Genome struct {
	ID                string     `json:"id"`
	LabName           string     `json:"lab_name"`
	Version           string     `json:"version"`
	ParentVersion     *string    `json:"parent_version"`
	Data              GenomeData `json:"genome_data"`
	ChangeDescription string     `json:"change_description"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
}

// BumpVersion returns the version following current. The minor part
// advances by 0.1 and is rounded to one decimal. An empty current version
// yields v0.1 and an unparseable one yields v0.2.
func BumpVersion(current string) string {
	if current == "" {
		return InitialVersion
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(current, "v", ""), 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return "v0.2"
	}
	next := math.Round((num+0.1)*10) / 10
	return "v" + strconv.FormatFloat(next, 'f', 1, 64)
}
