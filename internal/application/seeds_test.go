package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-autolab/internal/domain"
)

func TestSeedGenomeData(t *testing.T) {
	tests := []struct {
		lab           string
		keyword       string
		dimensions    []string
		topVenue      string
		audience      string
		extractsField string
	}{
		{
			lab:           domain.SafetyLab,
			keyword:       "autonomous driving safety",
			dimensions:    []string{"robustness", "rare_events_handling", "safety_metrics", "worst_case_performance", "failure_recovery"},
			topVenue:      "ICRA",
			audience:      "safety_engineers",
			extractsField: "failure_modes",
		},
		{
			lab:           domain.PerformanceLab,
			keyword:       "real-time perception",
			dimensions:    []string{"accuracy", "speed", "computational_efficiency", "sota_comparison", "scalability"},
			topVenue:      "CVPR",
			audience:      "ml_engineers",
			extractsField: "computational_cost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.lab, func(t *testing.T) {
			data, err := SeedGenomeData(tt.lab)
			require.NoError(t, err)

			assert.Contains(t, data.RetrievalPreferences.Keywords, tt.keyword)
			assert.Equal(t, tt.dimensions, data.CritiqueFocus.Dimensions)
			assert.Contains(t, data.RetrievalPreferences.VenueWeights, tt.topVenue)
			assert.Equal(t, tt.audience, data.SynthesisStyle.Audience)
			assert.Contains(t, data.ReadingTemplate.ExtractFields, tt.extractsField)
			assert.LessOrEqual(t, data.RetrievalPreferences.YearRange.Min, data.RetrievalPreferences.YearRange.Max)
			for _, dim := range data.CritiqueFocus.Dimensions {
				assert.Contains(t, data.CritiqueFocus.Weights, dim)
			}
		})
	}
}

func TestSeedGenomeData_ReturnsFreshCopies(t *testing.T) {
	first, err := SeedGenomeData(domain.SafetyLab)
	require.NoError(t, err)
	first.RetrievalPreferences.Keywords[0] = "mutated"
	first.CritiqueFocus.Weights["robustness"] = 0

	second, err := SeedGenomeData(domain.SafetyLab)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.RetrievalPreferences.Keywords[0])
	assert.NotZero(t, second.CritiqueFocus.Weights["robustness"])
}

func TestSeedGenomeData_UnknownLab(t *testing.T) {
	_, err := SeedGenomeData("ComfortLab")
	require.ErrorIs(t, err, domain.ErrUnknownLab)
}

func TestSeedChangeDescription(t *testing.T) {
	assert.Equal(t, "Initial genome for SafetyLab", SeedChangeDescription(domain.SafetyLab))
}
