package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-autolab/infrastructure/units"
	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// UnitDecorator wraps every stage unit the orchestrator builds, e.g. to
// add tracing.
type UnitDecorator func(ports.Unit) ports.Unit

// RunResult is everything one dual-lab run produced before persistence.
type RunResult struct {
	Safety            domain.LabOutput
	Performance       domain.LabOutput
	Decision          domain.JudgeDecision
	SafetyUpdate      domain.GenomeUpdate
	PerformanceUpdate domain.GenomeUpdate
	Duration          time.Duration
}

// Orchestrator runs both labs concurrently on one event, judges their
// syntheses and asks the MetaLearner how each genome should evolve. It
// holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	graph   *Pipeline
	learner *MetaLearner
	logger  *zap.Logger
	metrics ports.MetricsCollector
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	logger    *zap.Logger
	metrics   ports.MetricsCollector
	decorator UnitDecorator
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *orchestratorOptions) { o.logger = logger }
}

// WithMetrics records stage fallbacks.
func WithMetrics(metrics ports.MetricsCollector) OrchestratorOption {
	return func(o *orchestratorOptions) { o.metrics = metrics }
}

// WithUnitDecorator wraps every unit built for the run graph.
func WithUnitDecorator(decorator UnitDecorator) OrchestratorOption {
	return func(o *orchestratorOptions) { o.decorator = decorator }
}

// NewOrchestrator builds the run graph: a layer holding one Lab per lab
// name, merged with LabOutputsMerge, followed by the Judge.
func NewOrchestrator(registry ports.UnitRegistry, stages []StageConfig, opts ...OrchestratorOption) (*Orchestrator, error) {
	o := orchestratorOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if err := validateStages(stages); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	labs := NewLayer("labs")
	labs.SetMergeStrategy(LabOutputsMerge{})
	for _, name := range domain.LabNames {
		lab, err := buildLab(registry, name, stages, o.decorator)
		if err != nil {
			return nil, err
		}
		if err := labs.Add(lab); err != nil {
			return nil, err
		}
	}

	judge, err := createUnit(registry, units.TypeJudge, units.TypeJudge, yaml.Node{}, o.decorator)
	if err != nil {
		return nil, err
	}

	graph := NewPipeline("analysis")
	for _, exec := range []ports.Executable{labs, NewUnitAdapter(judge, units.TypeJudge)} {
		if err := graph.Add(exec); err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		graph:   graph,
		learner: NewMetaLearner(),
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

func buildLab(registry ports.UnitRegistry, lab string, stages []StageConfig, decorator UnitDecorator) (*Lab, error) {
	executables := make([]ports.Executable, 0, len(stages))
	for _, stage := range stages {
		unit, err := createUnit(registry, stage.Type, lab+"."+stage.ID, stage.Parameters, decorator)
		if err != nil {
			return nil, fmt.Errorf("lab %s: %w", lab, err)
		}
		executables = append(executables, NewUnitAdapter(unit, stage.ID))
	}
	return NewLab(lab, executables)
}

// createUnit decodes params and builds one unit through the registry.
func createUnit(
	registry ports.UnitRegistry,
	unitType, id string,
	params yaml.Node,
	decorator UnitDecorator,
) (ports.Unit, error) {
	config := make(map[string]any)
	if !params.IsZero() {
		if err := params.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode parameters for %s: %w", id, err)
		}
	}
	unit, err := registry.CreateUnit(unitType, id, config)
	if err != nil {
		return nil, err
	}
	if decorator != nil {
		unit = decorator(unit)
	}
	return unit, nil
}

// Run analyzes event with the given active genomes, one per lab.
func (o *Orchestrator) Run(ctx context.Context, event domain.Event, genomes map[string]domain.Genome) (RunResult, error) {
	start := time.Now()
	for _, lab := range domain.LabNames {
		if _, ok := genomes[lab]; !ok {
			return RunResult{}, fmt.Errorf("%s: %w", lab, domain.ErrGenomeNotFound)
		}
	}

	state := domain.NewState().WithMultiple(map[string]any{
		domain.KeyEvent.Name():      event,
		domain.KeyLabGenomes.Name(): genomes,
	})

	out, err := o.graph.Execute(ctx, state)
	if err != nil {
		return RunResult{}, err
	}

	outputs, ok := domain.Get(out, domain.KeyLabOutputs)
	if !ok {
		return RunResult{}, domain.MissingKeyError(domain.KeyLabOutputs, "orchestrator")
	}
	decision, ok := domain.Get(out, domain.KeyJudgeDecision)
	if !ok {
		return RunResult{}, domain.MissingKeyError(domain.KeyJudgeDecision, "orchestrator")
	}

	for _, lab := range domain.LabNames {
		o.reportFallbacks(event, outputs[lab])
	}

	safetyUpdate, performanceUpdate := o.learner.Evolve(
		decision,
		genomes[domain.SafetyLab].Data,
		genomes[domain.PerformanceLab].Data,
	)

	return RunResult{
		Safety:            outputs[domain.SafetyLab],
		Performance:       outputs[domain.PerformanceLab],
		Decision:          decision,
		SafetyUpdate:      safetyUpdate,
		PerformanceUpdate: performanceUpdate,
		Duration:          time.Since(start),
	}, nil
}

func (o *Orchestrator) reportFallbacks(event domain.Event, output domain.LabOutput) {
	for _, stage := range output.Fallbacks {
		o.logger.Warn("stage used deterministic fallback",
			zap.String("event_id", event.ID),
			zap.String("lab", output.LabName),
			zap.String("stage", stage),
		)
		if o.metrics != nil {
			o.metrics.RecordCounter(ports.MetricStageFallbacksTotal, 1, map[string]string{
				"lab":   output.LabName,
				"stage": stage,
			})
		}
	}
}
