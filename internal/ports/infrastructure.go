package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-autolab/internal/domain"
)

// LLMClient is a configured language model client. It is the transport
// behind a TextGenerator.
type LLMClient interface {
	// Complete sends prompt to the provider. Common options are
	// "temperature" (float64), "max_tokens" (int) and "model" (string).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier in use.
	GetModel() string
}

// MetricsCollector records operational metrics.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric by value.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram observes value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// GenomeStore is the append-only genome version store. "Active" is a
// query over the rows, never an in-place update.
type GenomeStore interface {
	// ActiveGenome returns the most recently created active row for lab.
	// It returns domain.ErrGenomeNotFound when the lab has no rows.
	ActiveGenome(ctx context.Context, lab string) (domain.Genome, error)

	// Lineage returns every row of lab, oldest first.
	Lineage(ctx context.Context, lab string) ([]domain.Genome, error)

	// InsertGenome appends a row. Existing rows are never modified.
	InsertGenome(ctx context.Context, genome domain.Genome) error
}

// AnalysisStore persists completed analysis runs.
type AnalysisStore interface {
	// CommitAnalysis writes result and every evolved genome row in one
	// transaction. Either all rows land or none do.
	CommitAnalysis(ctx context.Context, result domain.AnalysisResult, genomes []domain.Genome) error

	// GetAnalysis returns the analysis with id or domain.ErrAnalysisNotFound.
	GetAnalysis(ctx context.Context, id string) (domain.AnalysisResult, error)

	// LatestAnalysisForEvent returns the newest analysis of eventID or
	// domain.ErrAnalysisNotFound.
	LatestAnalysisForEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error)

	// ListAnalyses returns up to limit analyses, newest first. A limit of
	// zero or less means no limit.
	ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error)
}

// EventStore persists the events produced by the upstream detector.
type EventStore interface {
	SaveEvent(ctx context.Context, event domain.Event) error
	// GetEvent returns the event with id or domain.ErrEventNotFound.
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	// ListEvents returns up to limit events, newest first.
	ListEvents(ctx context.Context, limit int) ([]domain.Event, error)
}

// Store bundles the three stores a deployment needs.
type Store interface {
	GenomeStore
	AnalysisStore
	EventStore
	Close() error
}

// Catalog supplies the static, lab-specific paper list the Retriever
// ranks. Implementations return papers in a stable order.
type Catalog interface {
	Papers(lab string) ([]domain.Paper, error)
}

// Metric names shared by the recorders and the Prometheus collector.
const (
	MetricAnalysesTotal       = "autolab_analyses_total"
	MetricAnalysisDuration    = "autolab_analysis_duration_seconds"
	MetricStageFallbacksTotal = "autolab_stage_fallbacks_total"
	MetricGenomeEvolutions    = "autolab_genome_evolutions_total"
	MetricLabScore            = "autolab_lab_score"
	MetricUnitDuration        = "autolab_unit_duration_seconds"
	MetricUnitErrorsTotal     = "autolab_unit_errors_total"
)
