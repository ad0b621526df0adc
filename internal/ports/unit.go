// Package ports defines the contracts between the lab core and the
// infrastructure that feeds it: stage units, the text-generation
// collaborator, stores, catalogs and metrics.
package ports

import (
	"context"

	"github.com/ahrav/go-autolab/internal/domain"
)

// Unit is one stage of a lab pipeline. A Unit reads its inputs from the
// State, writes its output under its own key and returns the new State.
// Units are stateless and safe for concurrent use.
type Unit interface {
	// Name returns the unit identifier used in logs, spans and errors.
	Name() string

	// Execute runs the stage. The input State is never modified.
	//
	// Stage units degrade to a deterministic fallback when the
	// text-generation collaborator fails, so the only errors they return
	// are missing inputs, context cancellation or infrastructure failures
	// such as an unavailable catalog.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate reports whether the unit is configured and ready to run.
	Validate() error
}

// UnitFactory builds a Unit from an id and a loosely typed configuration
// map. Registries inject shared dependencies into config before calling it.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry creates stage units by type name.
type UnitRegistry interface {
	// CreateUnit builds a unit of unitType with the given id and config.
	CreateUnit(unitType, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for unitType.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes lists the registered unit types in sorted order.
	GetSupportedTypes() []string
}
