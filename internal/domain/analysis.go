package domain

import "time"

// Synthesis is a lab's final recommendation for one event.
type Synthesis struct {
	Summary                   string            `json:"summary" validate:"required"`
	KeyMethods                []string          `json:"key_methods"`
	DeploymentRecommendations []string          `json:"deployment_recommendations"`
	TradeOffs                 map[string]string `json:"trade_offs"`
	ConfidenceLevel           string            `json:"confidence_level"`
	LabName                   string            `json:"lab_name"`
	EventType                 string            `json:"event_type"`
	NumPapersAnalyzed         int               `json:"num_papers_analyzed"`
	TopPapers                 []TopPaper        `json:"top_papers"`
}

// TopPaper is the short reference a Synthesis keeps for its best papers.
type TopPaper struct {
	Title          string  `json:"title"`
	Score          float64 `json:"score"`
	MethodCategory string  `json:"method_category"`
}

// Winner names the outcome of a Judge comparison.
type Winner string

// Possible Judge outcomes.
const (
	WinnerSafety      Winner = SafetyLab
	WinnerPerformance Winner = PerformanceLab
	WinnerTie         Winner = "Tie"
)

// JudgeDecision compares the two lab syntheses for one event.
type JudgeDecision struct {
	Winner                Winner              `json:"winner"`
	SafetyScore           float64             `json:"safety_lab_score"`
	PerformanceScore      float64             `json:"performance_lab_score"`
	Reasoning             string              `json:"reasoning"`
	SafetyStrengths       []string            `json:"safety_lab_strengths"`
	SafetyWeaknesses      []string            `json:"safety_lab_weaknesses"`
	PerformanceStrengths  []string            `json:"performance_lab_strengths"`
	PerformanceWeaknesses []string            `json:"performance_lab_weaknesses"`
	Recommendations       map[string][]string `json:"recommendations_for_improvement"`
}

// ScoreFor returns the judge score of lab.
func (d JudgeDecision) ScoreFor(lab string) float64 {
	if lab == SafetyLab {
		return d.SafetyScore
	}
	return d.PerformanceScore
}

// LabOutput is everything one lab produced for one event.
type LabOutput struct {
	LabName         string           `json:"lab_name"`
	GenomeVersion   string           `json:"genome_version"`
	ResearchPlan    ResearchPlan     `json:"research_plan"`
	PapersAnalyzed  int              `json:"papers_analyzed"`
	TopPapers       []CritiquedPaper `json:"top_papers"`
	Synthesis       Synthesis        `json:"synthesis"`
	Fallbacks       []string         `json:"fallbacks,omitempty"`
	DurationSeconds float64          `json:"duration_seconds"`
}

// NoChanges is the change description of a genome that did not evolve.
const NoChanges = "No changes"

// GenomeUpdate is the MetaLearner verdict for one lab.
type GenomeUpdate struct {
	Updated       bool        `json:"updated"`
	Changes       string      `json:"changes"`
	NewGenomeData *GenomeData `json:"new_genome,omitempty"`
	// NewVersion and ParentVersion are filled once the service has
	// persisted the evolved genome.
	NewVersion    string      `json:"new_version,omitempty"`
	ParentVersion string      `json:"parent_version,omitempty"`
}

// AnalysisResult aggregates one full dual-lab run.
type AnalysisResult struct {
	ID                       string        `json:"id"`
	EventID                  string        `json:"event_id"`
	SafetyOutput             LabOutput     `json:"safety_lab_output"`
	PerformanceOutput        LabOutput     `json:"performance_lab_output"`
	Decision                 JudgeDecision `json:"judge_decision"`
	SafetyUpdate             GenomeUpdate  `json:"safety_genome_update"`
	PerformanceUpdate        GenomeUpdate  `json:"performance_genome_update"`
	SafetyGenomeVersion      string        `json:"safety_genome_version"`
	PerformanceGenomeVersion string        `json:"performance_genome_version"`
	DurationSeconds          float64       `json:"total_duration_seconds"`
	CreatedAt                time.Time     `json:"created_at"`
}

// NewSafetyVersion returns the version created for SafetyLab, or "".
func (r AnalysisResult) NewSafetyVersion() string { return r.SafetyUpdate.NewVersion }

// NewPerformanceVersion returns the version created for PerformanceLab, or "".
func (r AnalysisResult) NewPerformanceVersion() string { return r.PerformanceUpdate.NewVersion }
