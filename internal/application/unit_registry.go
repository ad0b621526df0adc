package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-autolab/infrastructure/units"
	"github.com/ahrav/go-autolab/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry implements ports.UnitRegistry for the lab stages
// and the Judge. It injects the shared text generator and paper catalog
// into the factory config of every unit that needs them.
type DefaultUnitRegistry struct {
	// factories maps unit type strings to their factory functions.
	factories map[string]ports.UnitFactory
	// mu protects concurrent access to the factories map and dependencies.
	mu sync.RWMutex
	// textGenerator is injected into planner, critic and synthesizer.
	textGenerator ports.TextGenerator
	// catalog is injected into the retriever.
	catalog ports.Catalog
}

// NewDefaultUnitRegistry creates a registry with every built-in stage
// type registered. gen may be nil, in which case the stages always use
// their deterministic fallbacks.
func NewDefaultUnitRegistry(gen ports.TextGenerator, catalog ports.Catalog) *DefaultUnitRegistry {
	registry := &DefaultUnitRegistry{
		factories:     make(map[string]ports.UnitFactory),
		textGenerator: gen,
		catalog:       catalog,
	}
	registry.registerBuiltinFactories()
	return registry
}

// registerBuiltinFactories registers the planner, retriever, reader,
// critic, synthesizer and judge types. Callers must hold mu or be the
// constructor.
func (r *DefaultUnitRegistry) registerBuiltinFactories() {
	// Capture the current dependencies to avoid data races.
	gen := r.textGenerator
	catalog := r.catalog

	withGenerator := func(config map[string]any) map[string]any {
		cfg := maps.Clone(config)
		if gen != nil {
			cfg[units.ConfigKeyTextGenerator] = gen
		}
		return cfg
	}

	r.factories[units.TypePlanner] = func(id string, config map[string]any) (ports.Unit, error) {
		return units.CreatePlannerUnit(id, withGenerator(config))
	}
	r.factories[units.TypeRetriever] = func(id string, config map[string]any) (ports.Unit, error) {
		cfg := maps.Clone(config)
		if catalog != nil {
			cfg[units.ConfigKeyCatalog] = catalog
		}
		return units.CreateRetrieverUnit(id, cfg)
	}
	r.factories[units.TypeReader] = func(id string, config map[string]any) (ports.Unit, error) {
		return units.CreateReaderUnit(id, config)
	}
	r.factories[units.TypeCritic] = func(id string, config map[string]any) (ports.Unit, error) {
		return units.CreateCriticUnit(id, withGenerator(config))
	}
	r.factories[units.TypeSynthesizer] = func(id string, config map[string]any) (ports.Unit, error) {
		return units.CreateSynthesizerUnit(id, withGenerator(config))
	}
	r.factories[units.TypeJudge] = func(id string, config map[string]any) (ports.Unit, error) {
		return units.CreateJudgeUnit(id, config)
	}
}

// CreateUnit creates a unit of unitType. The config map is never
// modified; injected dependencies go into a copy.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}

	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}

	return unit, nil
}

// RegisterUnitFactory registers or replaces the factory for unitType.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}

// SetTextGenerator swaps the generator injected into new units and
// re-registers the built-in factories. Units created earlier keep the
// generator they were built with.
func (r *DefaultUnitRegistry) SetTextGenerator(gen ports.TextGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.textGenerator = gen
	r.registerBuiltinFactories()
}

// TextGenerator returns the generator injected into new units.
func (r *DefaultUnitRegistry) TextGenerator() ports.TextGenerator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.textGenerator
}
