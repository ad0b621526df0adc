package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-autolab/internal/domain"
)

func TestExtract(t *testing.T) {
	paper := domain.Paper{
		Title:          "SafeNet: Verified Planning",
		Venue:          "ICRA",
		Year:           2023,
		MethodCategory: "safety_verification",
		KeyResults: map[string]any{
			"collision_rate":          0.001,
			"detection_accuracy_rain": 0.92,
			"fps":                     25.0,
			"map_score":               0.72,
		},
		DeploymentNotes: "Requires LiDAR; scalable to large fleets; fails in heavy snow",
		RelevanceScore:  1.0,
	}

	tests := []struct {
		field string
		want  any
	}{
		{field: "method_name", want: "SafeNet"},
		{field: "safety_guarantees", want: map[string]any{"collision_rate": 0.001}},
		{field: "robustness_metrics", want: map[string]any{"detection_accuracy_rain": 0.92}},
		{field: "performance_metrics", want: map[string]any{"fps": 25.0, "accuracy": 0.72}},
		{field: "computational_cost", want: map[string]any{"fps": 25.0}},
		{field: "deployment_notes", want: "Requires LiDAR; scalable to large fleets; fails in heavy snow"},
		{field: "failure_modes", want: []string{"Requires LiDAR", "fails in heavy snow"}},
		{field: "limitations", want: []string{"Requires LiDAR"}},
		{field: "scalability", want: "scalable"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			info := Extract(paper, []string{tt.field})
			assert.Equal(t, tt.want, info.Fields[tt.field])
			assert.Equal(t, paper.Title, info.Title)
			assert.Equal(t, paper.RelevanceScore, info.RelevanceScore)
		})
	}
}

func TestExtract_Sentinels(t *testing.T) {
	paper := domain.Paper{Title: "Plain", DeploymentNotes: "Works everywhere"}

	info := Extract(paper, []string{"failure_modes", "limitations", "scalability", "benchmark_results"})
	assert.Equal(t, []string{NoFailureModes}, info.Fields["failure_modes"])
	assert.Equal(t, []string{NoLimitations}, info.Fields["limitations"])
	assert.Equal(t, "limited", info.Fields["scalability"])
	assert.Equal(t, map[string]any{}, info.Fields["benchmark_results"])
}

func TestExtract_AccuracyPrefersTruthyScore(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]any
		want    map[string]any
	}{
		{
			name:    "nuscenes score wins",
			results: map[string]any{"nuscenes_score": 0.68, "map_score": 0.72},
			want:    map[string]any{"accuracy": 0.68},
		},
		{
			name:    "zero nuscenes score falls through",
			results: map[string]any{"nuscenes_score": 0.0, "map_score": 0.72},
			want:    map[string]any{"accuracy": 0.72},
		},
		{
			name:    "no scores",
			results: map[string]any{"latency_ms": 16.0},
			want:    map[string]any{"latency_ms": 16.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Extract(domain.Paper{Title: "x", KeyResults: tt.results}, []string{"performance_metrics"})
			assert.Equal(t, tt.want, info.Fields["performance_metrics"])
		})
	}
}

func TestExtract_UnknownFieldsSkipped(t *testing.T) {
	info := Extract(safetyPapers()[0], []string{"method_name", "favourite_colour"})
	assert.Len(t, info.Fields, 1)
	assert.Contains(t, info.Fields, "method_name")
	assert.False(t, IsReadingField("favourite_colour"))
	assert.True(t, IsReadingField("limitations"))
}

func TestExtract_BenchmarkResultsIsCopy(t *testing.T) {
	paper := performancePapers()[1]
	info := Extract(paper, []string{"benchmark_results"})

	results := info.Fields["benchmark_results"].(map[string]any)
	results["fps"] = 1.0
	assert.Equal(t, 60.0, paper.KeyResults["fps"])
}

func TestReaderUnit_Execute(t *testing.T) {
	unit, err := NewReaderUnit("reader")
	require.NoError(t, err)

	papers := RankPapers(performancePapers(), performanceGenome().RetrievalPreferences, MaxRetrievedPapers)
	state := domain.With(labState(domain.PerformanceLab, performanceGenome(), cutInHigh()), domain.KeyPapers, papers)

	out, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	extracted, ok := domain.Get(out, domain.KeyExtracted)
	require.True(t, ok)
	require.Len(t, extracted, len(papers))
	for i, info := range extracted {
		assert.Equal(t, papers[i].Title, info.Title)
		assert.Len(t, info.Fields, len(performanceGenome().ReadingTemplate.ExtractFields))
	}

	_, err = unit.Execute(context.Background(), labState(domain.PerformanceLab, performanceGenome(), cutInHigh()))
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestCreateReaderUnit(t *testing.T) {
	unit, err := CreateReaderUnit("reader", nil)
	require.NoError(t, err)
	assert.Equal(t, "reader", unit.Name())

	_, err = CreateReaderUnit("reader", map[string]any{"fields": []string{"x"}})
	assert.Error(t, err)

	_, err = CreateReaderUnit("", nil)
	assert.ErrorIs(t, err, ErrEmptyUnitName)
}
