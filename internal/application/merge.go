package application

import (
	"fmt"
	"maps"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// LabOutputsMerge unions the per-lab output maps written by concurrent
// Lab executables. Two members reporting the same lab is a wiring error.
type LabOutputsMerge struct{}

var _ ports.MergeStrategy = LabOutputsMerge{}

// Merge returns baseState extended with the union of every member's
// lab outputs.
func (LabOutputsMerge) Merge(baseState domain.State, states []domain.State) (domain.State, error) {
	merged, ok := domain.Get(baseState, domain.KeyLabOutputs)
	if !ok {
		merged = make(map[string]domain.LabOutput, len(states))
	}

	for i, s := range states {
		outputs, ok := domain.Get(s, domain.KeyLabOutputs)
		if !ok {
			return baseState, fmt.Errorf("member %d produced no %s", i, domain.KeyLabOutputs.Name())
		}
		for lab := range maps.Keys(outputs) {
			if _, dup := merged[lab]; dup {
				return baseState, fmt.Errorf("lab %s reported twice", lab)
			}
			merged[lab] = outputs[lab]
		}
	}

	return domain.With(baseState, domain.KeyLabOutputs, merged), nil
}
