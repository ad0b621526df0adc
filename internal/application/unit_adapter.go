package application

import (
	"context"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// UnitAdapter lets a ports.Unit take part in a Pipeline or Layer by
// giving it the ports.Executable identity those containers expect.
type UnitAdapter struct {
	// unit performs the work.
	unit ports.Unit
	// id is unique within the enclosing pipeline or layer.
	id string
}

var _ ports.Executable = (*UnitAdapter)(nil)

// NewUnitAdapter wraps unit under id. An empty id falls back to the unit
// name.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	if id == "" {
		id = unit.Name()
	}
	return &UnitAdapter{unit: unit, id: id}
}

// Execute delegates to the wrapped unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

// ID returns the adapter identifier.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
