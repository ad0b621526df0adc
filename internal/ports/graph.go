package ports

import (
	"context"

	"github.com/ahrav/go-autolab/internal/domain"
)

// MergeStrategy combines the states produced by the members of a Layer.
type MergeStrategy interface {
	// Merge combines states, given in member order, on top of baseState.
	// It must be deterministic and must not modify its inputs.
	Merge(baseState domain.State, states []domain.State) (domain.State, error)
}

// Executable is anything that can run inside a pipeline or layer: a
// wrapped unit, a whole lab, or a nested container.
type Executable interface {
	// Execute processes state and returns the updated state. The input
	// state is shared with concurrent siblings and must not be modified.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the stable identifier of the executable.
	ID() string
}

// Pipeline runs executables strictly in order, feeding each output into
// the next executable.
type Pipeline interface {
	Executable

	// Add appends exec. It fails when the id is already present.
	Add(exec Executable) error

	// Executables returns the members in execution order.
	Executables() []Executable
}

// Layer runs independent executables concurrently on the same input and
// merges their outputs.
type Layer interface {
	Executable

	// Add includes exec in the concurrent group.
	Add(exec Executable) error

	// Executables returns the members in insertion order.
	Executables() []Executable

	// SetMergeStrategy replaces the strategy used to combine outputs.
	SetMergeStrategy(strategy MergeStrategy)
}
