package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/testutils"
)

func TestOverallScore(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
		focus  domain.CritiqueFocus
		want   float64
	}{
		{
			name:   "equal weights",
			scores: map[string]float64{"a": 1.0, "b": 0.0},
			focus:  domain.CritiqueFocus{Dimensions: []string{"a", "b"}, Weights: map[string]float64{"a": 1, "b": 1}},
			want:   0.5,
		},
		{
			name:   "missing weight defaults to one",
			scores: map[string]float64{"a": 1.0, "b": 0.0},
			focus:  domain.CritiqueFocus{Dimensions: []string{"a", "b"}, Weights: map[string]float64{"a": 3}},
			want:   0.75,
		},
		{
			name:   "missing score is neutral",
			scores: map[string]float64{"a": 0.9},
			focus:  domain.CritiqueFocus{Dimensions: []string{"a", "b"}},
			want:   0.7,
		},
		{
			name:   "zero weight sum",
			scores: map[string]float64{"a": 0.9, "b": 0.1},
			focus:  domain.CritiqueFocus{Dimensions: []string{"a", "b"}, Weights: map[string]float64{"a": 0, "b": 0}},
			want:   NeutralScore,
		},
		{
			name:   "negative weight sum",
			scores: map[string]float64{"a": 0.9, "b": 0.1},
			focus:  domain.CritiqueFocus{Dimensions: []string{"a", "b"}, Weights: map[string]float64{"a": -1, "b": 0.5}},
			want:   NeutralScore,
		},
		{
			name:   "no dimensions",
			scores: map[string]float64{"a": 0.9},
			focus:  domain.CritiqueFocus{},
			want:   NeutralScore,
		},
		{
			name:   "undeclared scores ignored",
			scores: map[string]float64{"a": 0.4, "z": 1.0},
			focus:  domain.CritiqueFocus{Dimensions: []string{"a"}},
			want:   0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, OverallScore(tt.scores, tt.focus), 1e-9)
		})
	}
}

func TestHeuristicScores(t *testing.T) {
	fields := []string{"robustness_metrics", "performance_metrics", "computational_cost"}

	tests := []struct {
		name  string
		paper domain.Paper
		dims  []string
		want  map[string]float64
	}{
		{
			name:  "rain accuracy drives robustness",
			paper: safetyPapers()[1],
			dims:  []string{"robustness", "rare_events_handling"},
			want:  map[string]float64{"robustness": 0.92, "rare_events_handling": DefaultHeuristicScore},
		},
		{
			name:  "robustness default",
			paper: safetyPapers()[0],
			dims:  []string{"robustness"},
			want:  map[string]float64{"robustness": 0.7},
		},
		{
			name:  "fps capped at one",
			paper: performancePapers()[1],
			dims:  []string{"accuracy", "speed", "computational_efficiency"},
			want:  map[string]float64{"accuracy": 0.72, "speed": 1.0, "computational_efficiency": 1.0},
		},
		{
			name:  "missing fps counts as thirty",
			paper: performancePapers()[2],
			dims:  []string{"accuracy", "speed"},
			want:  map[string]float64{"accuracy": 0.75, "speed": 0.5},
		},
		{
			name:  "partial fps",
			paper: safetyPapers()[1],
			dims:  []string{"speed"},
			want:  map[string]float64{"speed": 25.0 / 60.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeuristicScores(Extract(tt.paper, fields), tt.dims)
			require.Len(t, got, len(tt.want))
			for d, want := range tt.want {
				assert.InDelta(t, want, got[d], 1e-9, d)
			}
		})
	}
}

func TestMatchDimensions(t *testing.T) {
	tests := []struct {
		name      string
		generated map[string]float64
		dims      []string
		want      map[string]float64
	}{
		{
			name:      "exact keys",
			generated: map[string]float64{"speed": 0.4, "accuracy": 0.8},
			dims:      []string{"speed", "accuracy"},
			want:      map[string]float64{"speed": 0.4, "accuracy": 0.8},
		},
		{
			name:      "near miss within distance",
			generated: map[string]float64{"robustnes": 0.9},
			dims:      []string{"robustness"},
			want:      map[string]float64{"robustness": 0.9},
		},
		{
			name:      "too far is neutral",
			generated: map[string]float64{"speed": 0.4},
			dims:      []string{"accuracy"},
			want:      map[string]float64{"accuracy": NeutralScore},
		},
		{
			name:      "equal distance picks alphabetical first",
			generated: map[string]float64{"abe": 0.2, "abd": 0.1},
			dims:      []string{"abc"},
			want:      map[string]float64{"abc": 0.1},
		},
		{
			name:      "extra keys dropped",
			generated: map[string]float64{"speed": 0.4, "novelty": 0.9},
			dims:      []string{"speed"},
			want:      map[string]float64{"speed": 0.4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchDimensions(tt.generated, tt.dims))
		})
	}
}

func TestSortByOverallScore_Stable(t *testing.T) {
	papers := []domain.CritiquedPaper{
		{ExtractedInfo: domain.ExtractedInfo{Title: "a"}, Critique: domain.Critique{OverallScore: 0.5}},
		{ExtractedInfo: domain.ExtractedInfo{Title: "b"}, Critique: domain.Critique{OverallScore: 0.9}},
		{ExtractedInfo: domain.ExtractedInfo{Title: "c"}, Critique: domain.Critique{OverallScore: 0.5}},
		{ExtractedInfo: domain.ExtractedInfo{Title: "d"}, Critique: domain.Critique{OverallScore: 0.9}},
	}

	SortByOverallScore(papers)

	var titles []string
	for _, p := range papers {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, titles)
}

func critiqueState(t *testing.T) domain.State {
	t.Helper()
	genome := safetyGenome()
	extracted := ExtractAll(safetyPapers(), genome.ReadingTemplate.ExtractFields)
	return domain.With(labState(domain.SafetyLab, genome, cutInHigh()), domain.KeyExtracted, extracted)
}

func TestCriticUnit_Execute(t *testing.T) {
	gen := testutils.NewMockTextGenerator().
		AddResponse(testutils.MockResponse{
			Stage:    TypeCritic,
			Pattern:  "Reachability",
			Response: `{"scores": {"robustness": 0.6, "rare_events_handling": 0.6, "safety_metrics": 0.6}, "strengths": ["formal"], "weaknesses": ["slow"]}`,
		}).
		AddResponse(testutils.MockResponse{
			Stage:    TypeCritic,
			Pattern:  "Adverse Weather",
			Response: `{"scores": {"robustness": 1.5}, "strengths": [], "weaknesses": []}`,
		}).
		AddResponse(testutils.MockResponse{
			Stage:    TypeCritic,
			Pattern:  "Uncertainty-Aware",
			Response: `Sure! {"scores": {"robustness": 0.9, "rare_event_handling": 0.9, "safety_metrics": 0.9}, "strengths": ["calibrated"], "weaknesses": []}`,
		})

	unit, err := NewCriticUnit("critic", gen, DefaultCriticConfig())
	require.NoError(t, err)

	out, err := unit.Execute(context.Background(), critiqueState(t))
	require.NoError(t, err)

	critiqued, ok := domain.Get(out, domain.KeyCritiqued)
	require.True(t, ok)
	require.Len(t, critiqued, 3)

	assert.Equal(t, "Uncertainty-Aware Planning for Safety-Critical Autonomous Driving", critiqued[0].Title)
	assert.InDelta(t, 0.9, critiqued[0].Critique.OverallScore, 1e-9)
	assert.InDelta(t, 0.9, critiqued[0].Critique.Scores["rare_events_handling"], 1e-9)

	assert.Equal(t, "Robust Perception Under Adverse Weather Using Multi-Modal Sensor Fusion", critiqued[1].Title)
	assert.InDelta(t, (0.92+0.75+0.75)/3, critiqued[1].Critique.OverallScore, 1e-9)
	assert.Equal(t, fallbackStrengths, critiqued[1].Critique.Strengths)
	assert.Equal(t, fallbackWeaknesses, critiqued[1].Critique.Weaknesses)

	assert.InDelta(t, 0.6, critiqued[2].Critique.OverallScore, 1e-9)
	assert.Equal(t, []string{"formal"}, critiqued[2].Critique.Strengths)

	fallbacks, ok := domain.Get(out, domain.KeyFallbacks)
	require.True(t, ok)
	assert.Equal(t, []string{TypeCritic}, fallbacks)
	assert.Equal(t, 3, gen.CallCount())
}

func TestCriticUnit_AllFallback(t *testing.T) {
	gen := testutils.NewMockTextGenerator().FailStage(TypeCritic)
	unit, err := NewCriticUnit("critic", gen, DefaultCriticConfig())
	require.NoError(t, err)

	out, err := unit.Execute(context.Background(), critiqueState(t))
	require.NoError(t, err)

	critiqued, _ := domain.Get(out, domain.KeyCritiqued)
	require.Len(t, critiqued, 3)
	for i := 1; i < len(critiqued); i++ {
		assert.GreaterOrEqual(t, critiqued[i-1].Critique.OverallScore, critiqued[i].Critique.OverallScore)
	}
	for _, p := range critiqued {
		assert.GreaterOrEqual(t, p.Critique.OverallScore, 0.0)
		assert.LessOrEqual(t, p.Critique.OverallScore, 1.0)
	}

	fallbacks, _ := domain.Get(out, domain.KeyFallbacks)
	assert.Equal(t, []string{TypeCritic}, fallbacks, "fallback recorded once per stage")
}

func TestCriticUnit_EmptyInput(t *testing.T) {
	unit, err := NewCriticUnit("critic", nil, DefaultCriticConfig())
	require.NoError(t, err)

	state := domain.With(labState(domain.SafetyLab, safetyGenome(), cutInHigh()), domain.KeyExtracted, []domain.ExtractedInfo{})
	out, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	critiqued, ok := domain.Get(out, domain.KeyCritiqued)
	require.True(t, ok)
	assert.Empty(t, critiqued)
	_, degraded := domain.Get(out, domain.KeyFallbacks)
	assert.False(t, degraded)
}

func TestCreateCriticUnit(t *testing.T) {
	unit, err := CreateCriticUnit("critic", map[string]any{"temperature": 0.0, "max_tokens": 1024})
	require.NoError(t, err)
	assert.Equal(t, 1024, unit.config.MaxTokens)
	assert.Nil(t, unit.gen)

	_, err = CreateCriticUnit("critic", map[string]any{"max_tokens": 1})
	assert.Error(t, err)
}
