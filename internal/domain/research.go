package domain

// ResearchPlan is the per-run Planner output. It is never persisted on its
// own; it travels inside LabOutput.
type ResearchPlan struct {
	LabName            string   `json:"lab_name"`
	EventType          string   `json:"event_type"`
	SubQuestions       []string `json:"sub_questions"`
	SearchStrategy     string   `json:"search_strategy"`
	Keywords           []string `json:"keywords"`
	PriorityDimensions []string `json:"priority_dimensions"`
}

// Paper is a candidate retrieved from a lab catalog. KeyResults values are
// float64 or bool.
type Paper struct {
	Title           string         `json:"title" yaml:"title" validate:"required"`
	Authors         []string       `json:"authors" yaml:"authors"`
	Venue           string         `json:"venue" yaml:"venue" validate:"required"`
	Year            int            `json:"year" yaml:"year" validate:"required"`
	MethodCategory  string         `json:"method_category" yaml:"method_category"`
	Abstract        string         `json:"abstract" yaml:"abstract"`
	KeyResults      map[string]any `json:"key_results" yaml:"key_results"`
	DeploymentNotes string         `json:"deployment_notes" yaml:"deployment_notes"`
	RelevanceScore  float64        `json:"relevance_score" yaml:"-"`
}

// ExtractedInfo is a paper reshaped by the genome reading template. Fields
// holds one entry per recognised field name.
type ExtractedInfo struct {
	Title          string         `json:"title"`
	Authors        []string       `json:"authors"`
	Venue          string         `json:"venue"`
	Year           int            `json:"year"`
	MethodCategory string         `json:"method_category"`
	RelevanceScore float64        `json:"relevance_score"`
	Fields         map[string]any `json:"extracted_info"`
}

// FieldString returns Fields[name] when it holds a string.
func (e ExtractedInfo) FieldString(name string) (string, bool) {
	s, ok := e.Fields[name].(string)
	return s, ok
}

// FieldMetric returns Fields[group][metric] when it holds a number.
func (e ExtractedInfo) FieldMetric(group, metric string) (float64, bool) {
	m, ok := e.Fields[group].(map[string]any)
	if !ok {
		return 0, false
	}
	return AsFloat(m[metric])
}

// Critique is the Critic verdict attached to one paper.
type Critique struct {
	Scores       map[string]float64 `json:"scores"`
	Strengths    []string           `json:"strengths"`
	Weaknesses   []string           `json:"weaknesses"`
	OverallScore float64            `json:"overall_score"`
}

// CritiquedPaper pairs extracted information with its critique.
type CritiquedPaper struct {
	ExtractedInfo
	Critique Critique `json:"critique"`
}

// AsFloat converts the numeric values found in key results into float64.
// Booleans are not numbers and report false.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
