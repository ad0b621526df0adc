package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-autolab/infrastructure/units"
	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// LabTopPapers is how many critiqued papers a LabOutput keeps.
const LabTopPapers = 5

// LabStages is the only stage order a lab accepts.
var LabStages = []string{
	units.TypePlanner,
	units.TypeRetriever,
	units.TypeReader,
	units.TypeCritic,
	units.TypeSynthesizer,
}

// Lab runs the five research stages for one named lab and reports a
// domain.LabOutput. It reads its genome from domain.KeyLabGenomes and the
// shared event from domain.KeyEvent; every lab-scoped key it produces
// stays inside the run, and only KeyLabOutputs is returned to the caller.
type Lab struct {
	name     string
	pipeline *Pipeline
	now      func() time.Time
}

var _ ports.Executable = (*Lab)(nil)

// NewLab wires the stage executables of lab into a pipeline. The stages
// must be given in LabStages order, one per stage.
func NewLab(name string, stages []ports.Executable) (*Lab, error) {
	if !domain.IsKnownLab(name) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownLab, name)
	}
	if len(stages) != len(LabStages) {
		return nil, fmt.Errorf("lab %s needs %d stages, got %d", name, len(LabStages), len(stages))
	}

	pipeline := NewPipeline(name)
	for _, stage := range stages {
		if err := pipeline.Add(stage); err != nil {
			return nil, fmt.Errorf("lab %s: %w", name, err)
		}
	}
	return &Lab{name: name, pipeline: pipeline, now: time.Now}, nil
}

// ID returns the lab name.
func (l *Lab) ID() string { return l.name }

// Execute runs the stages in order and writes a single-entry
// KeyLabOutputs map on top of the input state.
func (l *Lab) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	genomes, ok := domain.Get(state, domain.KeyLabGenomes)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyLabGenomes, l.name)
	}
	genome, ok := genomes[l.name]
	if !ok {
		return state, fmt.Errorf("lab %s: %w", l.name, domain.ErrGenomeNotFound)
	}
	if _, ok := domain.Get(state, domain.KeyEvent); !ok {
		return state, domain.MissingKeyError(domain.KeyEvent, l.name)
	}

	start := l.now()
	inner := state.WithMultiple(map[string]any{
		domain.KeyLabName.Name(): l.name,
		domain.KeyGenome.Name():  genome.Data,
	})
	out, err := l.pipeline.Execute(ctx, inner)
	if err != nil {
		return state, fmt.Errorf("lab %s: %w", l.name, err)
	}

	output, err := l.collect(out)
	if err != nil {
		return state, err
	}
	output.GenomeVersion = genome.Version
	output.DurationSeconds = l.now().Sub(start).Seconds()

	return domain.With(state, domain.KeyLabOutputs, map[string]domain.LabOutput{l.name: output}), nil
}

// collect reads the stage results out of the final pipeline state.
func (l *Lab) collect(out domain.State) (domain.LabOutput, error) {
	plan, ok := domain.Get(out, domain.KeyResearchPlan)
	if !ok {
		return domain.LabOutput{}, domain.MissingKeyError(domain.KeyResearchPlan, l.name)
	}
	critiqued, ok := domain.Get(out, domain.KeyCritiqued)
	if !ok {
		return domain.LabOutput{}, domain.MissingKeyError(domain.KeyCritiqued, l.name)
	}
	synthesis, ok := domain.Get(out, domain.KeySynthesis)
	if !ok {
		return domain.LabOutput{}, domain.MissingKeyError(domain.KeySynthesis, l.name)
	}
	fallbacks, _ := domain.Get(out, domain.KeyFallbacks)

	return domain.LabOutput{
		LabName:        l.name,
		ResearchPlan:   plan,
		PapersAnalyzed: len(critiqued),
		TopPapers:      critiqued[:min(len(critiqued), LabTopPapers)],
		Synthesis:      synthesis,
		Fallbacks:      fallbacks,
	}, nil
}
