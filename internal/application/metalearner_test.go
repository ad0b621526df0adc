package application

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-autolab/internal/domain"
)

func seedPair(t *testing.T) (safety, performance domain.GenomeData) {
	t.Helper()
	safety, err := SeedGenomeData(domain.SafetyLab)
	require.NoError(t, err)
	performance, err = SeedGenomeData(domain.PerformanceLab)
	require.NoError(t, err)
	return safety, performance
}

func TestMetaLearner_WinnerAndLoser(t *testing.T) {
	safety, performance := seedPair(t)
	decision := domain.JudgeDecision{
		Winner:           domain.WinnerSafety,
		SafetyScore:      0.8,
		PerformanceScore: 0.6,
		Recommendations: map[string][]string{
			domain.PerformanceLab: {"Improve speed and scalability analysis", "Cite more recent work"},
		},
	}

	safetyUpdate, perfUpdate := NewMetaLearner().Evolve(decision, safety, performance)

	require.True(t, safetyUpdate.Updated)
	assert.Equal(t, "Reinforced 'robustness' weight from 1.00 to 1.00", safetyUpdate.Changes)
	require.NotNil(t, safetyUpdate.NewGenomeData)
	assert.InDelta(t, 1.0, safetyUpdate.NewGenomeData.CritiqueFocus.Weights["robustness"], 1e-9)

	require.True(t, perfUpdate.Updated)
	assert.Equal(t,
		"Added keywords: autonomous driving safety, collision avoidance; "+
			"Increased weight for 'speed' from 1.00 to 1.00; "+
			"Increased weight for 'scalability' from 0.70 to 0.80",
		perfUpdate.Changes,
	)
	evolved := perfUpdate.NewGenomeData
	require.NotNil(t, evolved)
	assert.Equal(t, append(append([]string{}, performance.RetrievalPreferences.Keywords...),
		"autonomous driving safety", "collision avoidance"), evolved.RetrievalPreferences.Keywords)
	assert.InDelta(t, 0.8, evolved.CritiqueFocus.Weights["scalability"], 1e-9)
	assert.Equal(t, 2020, evolved.RetrievalPreferences.YearRange.Min, "already at the recent floor")
}

func TestMetaLearner_LowScoringWinnerLearns(t *testing.T) {
	safety, performance := seedPair(t)
	decision := domain.JudgeDecision{
		Winner:           domain.WinnerSafety,
		SafetyScore:      0.65,
		PerformanceScore: 0.5,
		Recommendations: map[string][]string{
			domain.SafetyLab: {"Use the latest benchmarks"},
		},
	}

	safetyUpdate, _ := NewMetaLearner().Evolve(decision, safety, performance)

	require.True(t, safetyUpdate.Updated)
	assert.Contains(t, safetyUpdate.Changes, "Added keywords: autonomous driving SOTA, real-time perception")
	assert.Contains(t, safetyUpdate.Changes, "Updated year window to focus on more recent research (2020-2024)")
	assert.Equal(t, RecentYearFloor, safetyUpdate.NewGenomeData.RetrievalPreferences.YearRange.Min)
	assert.Equal(t, 2024, safetyUpdate.NewGenomeData.RetrievalPreferences.YearRange.Max)
}

func TestMetaLearner_Tie(t *testing.T) {
	safety, performance := seedPair(t)
	decision := domain.JudgeDecision{
		Winner:           domain.WinnerTie,
		SafetyScore:      0.5,
		PerformanceScore: 0.5,
		Recommendations: map[string][]string{
			domain.SafetyLab: {"Use the latest benchmarks"},
		},
	}

	safetyUpdate, perfUpdate := NewMetaLearner().Evolve(decision, safety, performance)

	// Venues scan in byte order, so CVPR precedes CoRL.
	assert.Equal(t, "Increased CoRL weight from 1.00 to 1.00", safetyUpdate.Changes)
	assert.Equal(t, "Increased CVPR weight from 1.00 to 1.00", perfUpdate.Changes)
	assert.True(t, safetyUpdate.Updated)
	assert.Equal(t, safety.RetrievalPreferences.YearRange, safetyUpdate.NewGenomeData.RetrievalPreferences.YearRange,
		"only the tie rule applies")
}

func TestMetaLearner_EdgeCases(t *testing.T) {
	empty := domain.GenomeData{}
	tests := []struct {
		name        string
		decision    domain.JudgeDecision
		safety      domain.GenomeData
		performance domain.GenomeData
		wantSafety  string
		wantPerf    string
	}{
		{
			name:        "winner without weights keeps its strategy",
			decision:    domain.JudgeDecision{Winner: domain.WinnerPerformance, PerformanceScore: 0.9, SafetyScore: 0.4},
			safety:      empty,
			performance: empty,
			wantSafety:  "Minor parameter adjustments",
			wantPerf:    "Maintained successful strategy",
		},
		{
			name:        "tie without venues",
			decision:    domain.JudgeDecision{Winner: domain.WinnerTie},
			safety:      empty,
			performance: empty,
			wantSafety:  "No significant changes",
			wantPerf:    "No significant changes",
		},
		{
			name:     "loser with nothing to adopt",
			decision: domain.JudgeDecision{Winner: domain.WinnerSafety, SafetyScore: 0.9, PerformanceScore: 0.3},
			safety: domain.GenomeData{RetrievalPreferences: domain.RetrievalPreferences{
				Keywords: []string{"shared"},
			}},
			performance: domain.GenomeData{RetrievalPreferences: domain.RetrievalPreferences{
				Keywords: []string{"shared"},
			}},
			wantSafety: "Maintained successful strategy",
			wantPerf:   "Minor parameter adjustments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			safetyUpdate, perfUpdate := NewMetaLearner().Evolve(tt.decision, tt.safety, tt.performance)
			assert.Equal(t, tt.wantSafety, safetyUpdate.Changes)
			assert.Equal(t, tt.wantPerf, perfUpdate.Changes)
			assert.True(t, safetyUpdate.Updated)
			assert.True(t, perfUpdate.Updated)
		})
	}
}

func TestMetaLearner_DoesNotModifyInputs(t *testing.T) {
	safety, performance := seedPair(t)
	safetyBefore, perfBefore := safety.Clone(), performance.Clone()

	decision := domain.JudgeDecision{
		Winner:           domain.WinnerPerformance,
		SafetyScore:      0.3,
		PerformanceScore: 0.9,
		Recommendations: map[string][]string{
			domain.SafetyLab: {"Focus on robustness", "Include recent work"},
		},
	}
	NewMetaLearner().Evolve(decision, safety, performance)

	assert.Empty(t, cmp.Diff(safetyBefore, safety))
	assert.Empty(t, cmp.Diff(perfBefore, performance))
}

func TestFirstMax(t *testing.T) {
	tests := []struct {
		name   string
		order  []string
		values map[string]float64
		want   string
		wantOK bool
	}{
		{name: "empty", order: nil, values: nil, wantOK: false},
		{name: "single", order: []string{"a"}, values: map[string]float64{"a": 0.1}, want: "a", wantOK: true},
		{name: "first of equal maxima", order: []string{"b", "a"}, values: map[string]float64{"a": 1, "b": 1}, want: "b", wantOK: true},
		{name: "strict maximum", order: []string{"a", "b", "c"}, values: map[string]float64{"a": 0.2, "b": 0.9, "c": 0.5}, want: "b", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstMax(tt.order, tt.values)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
