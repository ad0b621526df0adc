package application

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/ahrav/go-autolab/internal/domain"
)

// Evolution constants.
const (
	// PassingScore is the judge score below which a lab is treated as a
	// loser even when it won.
	PassingScore = 0.7

	// MaxAdoptedKeywords caps the keywords a losing lab copies per run.
	MaxAdoptedKeywords = 2

	// RecentYearFloor is the year-window lower bound a losing lab moves to
	// when asked for recent work.
	RecentYearFloor = 2020

	lossWeightStep  = 0.1
	winWeightStep   = 0.05
	tieVenueStep    = 0.05
	maxEvolvedValue = 1.0
)

// MetaLearner evolves both lab genomes from a judge decision. It is a
// pure function of its inputs: the genomes passed in are never modified.
type MetaLearner struct{}

// NewMetaLearner creates a MetaLearner.
func NewMetaLearner() *MetaLearner { return &MetaLearner{} }

// Evolve returns the genome update of each lab. On a tie only the tie rule
// applies. Otherwise a lab that lost or scored below PassingScore learns
// from the other lab, and a lab that won with a passing score reinforces
// its strongest dimension.
func (m *MetaLearner) Evolve(
	decision domain.JudgeDecision,
	safety, performance domain.GenomeData,
) (safetyUpdate, performanceUpdate domain.GenomeUpdate) {
	safetyUpdate = m.evolveLab(decision, domain.SafetyLab, safety, performance)
	performanceUpdate = m.evolveLab(decision, domain.PerformanceLab, performance, safety)
	return safetyUpdate, performanceUpdate
}

func (m *MetaLearner) evolveLab(
	decision domain.JudgeDecision,
	lab string,
	current, rival domain.GenomeData,
) domain.GenomeUpdate {
	next := current.Clone()
	score := decision.ScoreFor(lab)

	var changes []string
	switch {
	case decision.Winner == domain.WinnerTie:
		changes = adjustTopVenue(&next)
	case string(decision.Winner) != lab || score < PassingScore:
		changes = learnFromRival(&next, rival, decision.Recommendations[lab])
	default:
		changes = reinforceTopDimension(&next)
	}

	text := domain.NoChanges
	if len(changes) > 0 {
		text = strings.Join(changes, "; ")
	}
	update := domain.GenomeUpdate{Updated: text != domain.NoChanges, Changes: text}
	if update.Updated {
		update.NewGenomeData = &next
	}
	return update
}

// learnFromRival is the losing-lab rule.
func learnFromRival(g *domain.GenomeData, rival domain.GenomeData, recommendations []string) []string {
	var changes []string
	prefs := &g.RetrievalPreferences

	var adopted []string
	for _, kw := range rival.RetrievalPreferences.Keywords {
		if len(adopted) == MaxAdoptedKeywords {
			break
		}
		if !slices.Contains(prefs.Keywords, kw) {
			adopted = append(adopted, kw)
		}
	}
	if len(adopted) > 0 {
		prefs.Keywords = append(prefs.Keywords, adopted...)
		changes = append(changes, "Added keywords: "+strings.Join(adopted, ", "))
	}

	weights := g.CritiqueFocus.Weights
	order := g.CritiqueFocus.WeightOrder()
	wantsRecent := false
	for _, rec := range recommendations {
		lower := strings.ToLower(rec)
		for _, d := range order {
			if !strings.Contains(lower, strings.ReplaceAll(d, "_", " ")) {
				continue
			}
			before := weights[d]
			weights[d] = math.Min(before+lossWeightStep, maxEvolvedValue)
			changes = append(changes, fmt.Sprintf("Increased weight for '%s' from %.2f to %.2f", d, before, weights[d]))
		}
		if strings.Contains(lower, "latest") || strings.Contains(lower, "recent") {
			wantsRecent = true
		}
	}

	if wantsRecent && prefs.YearRange.Min < RecentYearFloor {
		prefs.YearRange.Min = RecentYearFloor
		changes = append(changes, "Updated year window to focus on more recent research (2020-2024)")
	}

	if len(changes) == 0 {
		return []string{"Minor parameter adjustments"}
	}
	return changes
}

// reinforceTopDimension is the winning-lab rule. The first maximum in
// WeightOrder wins ties.
func reinforceTopDimension(g *domain.GenomeData) []string {
	weights := g.CritiqueFocus.Weights
	top, ok := firstMax(g.CritiqueFocus.WeightOrder(), weights)
	if !ok {
		return []string{"Maintained successful strategy"}
	}
	before := weights[top]
	weights[top] = math.Min(before+winWeightStep, maxEvolvedValue)
	return []string{fmt.Sprintf("Reinforced '%s' weight from %.2f to %.2f", top, before, weights[top])}
}

// adjustTopVenue is the tie rule. Venues are scanned in name order.
func adjustTopVenue(g *domain.GenomeData) []string {
	venues := g.RetrievalPreferences.VenueWeights
	top, ok := firstMax(slices.Sorted(maps.Keys(venues)), venues)
	if !ok {
		return []string{"No significant changes"}
	}
	before := venues[top]
	venues[top] = math.Min(before+tieVenueStep, maxEvolvedValue)
	return []string{fmt.Sprintf("Increased %s weight from %.2f to %.2f", top, before, venues[top])}
}

// firstMax returns the first key in order holding the largest value.
func firstMax(order []string, values map[string]float64) (string, bool) {
	best, found := "", false
	for _, k := range order {
		if !found || values[k] > values[best] {
			best, found = k, true
		}
	}
	return best, found
}
