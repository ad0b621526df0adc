package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// Pipeline runs its executables strictly in insertion order. Each
// executable receives the state produced by the one before it, which is
// how a lab chains Planner, Retriever, Reader, Critic and Synthesizer.
type Pipeline struct {
	// id names the pipeline in errors and logs.
	id string
	// executables are run front to back.
	executables []ports.Executable
	// idSet rejects duplicate member ids.
	idSet map[string]struct{}
	mu    sync.RWMutex
}

// NewPipeline creates an empty pipeline.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute threads state through every member in order. It stops at the
// first failure or when ctx is cancelled between members, returning the
// last good state together with the error.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	executables := p.Executables()

	currentState := state
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return currentState, err
		}
		newState, err := exec.Execute(ctx, currentState)
		if err != nil {
			return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		currentState = newState
	}

	return currentState, nil
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string { return p.id }

// Add appends exec to the end of the pipeline.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the members in execution order.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ports.Executable, len(p.executables))
	copy(result, p.executables)
	return result
}

// Layer fans the same input state out to independent executables and
// joins them before returning. The orchestrator uses a Layer to run both
// labs in parallel ahead of the Judge.
//
// Outputs reach the merge strategy in member order regardless of which
// goroutine finished first, so merging is deterministic.
type Layer struct {
	id          string
	executables []ports.Executable
	idSet       map[string]struct{}
	// mergeStrategy combines member outputs; nil means last-write-wins.
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit caps in-flight members; zero or less means one
	// goroutine per member.
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates an empty layer.
func NewLayer(id string) *Layer {
	return &Layer{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute runs every member concurrently on state. When a member fails,
// the shared context is cancelled and every member error is joined into
// the returned error. The input state is returned unchanged on failure.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := make([]ports.Executable, len(l.executables))
	copy(executables, l.executables)
	limit := l.concurrencyLimit
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}

	outputs := make([]domain.State, len(executables))
	errs := make([]error, len(executables))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, exec := range executables {
		g.Go(func() error {
			out, err := exec.Execute(gctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return errs[i]
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		joined := errors.Join(errs...)
		return state, fmt.Errorf("layer %s failed: %w", l.id, joined)
	}
	if err := ctx.Err(); err != nil {
		return state, err
	}

	if strategy == nil {
		strategy = defaultMergeStrategy{}
	}
	merged, err := strategy.Merge(state, outputs)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// ID returns the layer identifier.
func (l *Layer) ID() string { return l.id }

// Add includes exec in the concurrent group.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the members in insertion order.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]ports.Executable, len(l.executables))
	copy(result, l.executables)
	return result
}

// SetMergeStrategy replaces the strategy used to combine member outputs.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mergeStrategy = strategy
}

// SetConcurrencyLimit caps the number of members running at once.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.concurrencyLimit = limit
}

// defaultMergeStrategy keeps the output of the last member.
type defaultMergeStrategy struct{}

// Merge returns the last state, or baseState when there is none.
func (defaultMergeStrategy) Merge(baseState domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return baseState, nil
	}
	return states[len(states)-1], nil
}

var (
	_ ports.Pipeline = (*Pipeline)(nil)
	_ ports.Layer    = (*Layer)(nil)
)
