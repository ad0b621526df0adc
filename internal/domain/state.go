// Package domain contains pure, dependency-free domain models and types
// for the dual research lab engine.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the string form of the key as stored in State.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys used by the lab stages.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyEvent stores the driving event shared by both labs.
	KeyEvent = Key[Event]{"event"}

	// KeyLabName stores the name of the lab running the current pipeline.
	KeyLabName = Key[string]{"lab.name"}

	// KeyGenome stores the genome data that configures the current lab.
	KeyGenome = Key[GenomeData]{"lab.genome"}

	// KeyResearchPlan stores the Planner output.
	KeyResearchPlan = Key[ResearchPlan]{"lab.research_plan"}

	// KeyPapers stores the ranked Retriever output.
	KeyPapers = Key[[]Paper]{"lab.papers"}

	// KeyExtracted stores the Reader output, one entry per retrieved paper.
	KeyExtracted = Key[[]ExtractedInfo]{"lab.extracted"}

	// KeyCritiqued stores the Critic output sorted by overall score.
	KeyCritiqued = Key[[]CritiquedPaper]{"lab.critiqued"}

	// KeySynthesis stores the Synthesizer output.
	KeySynthesis = Key[Synthesis]{"lab.synthesis"}

	// KeyFallbacks lists the stages that degraded to their deterministic
	// fallback during the current lab run.
	KeyFallbacks = Key[[]string]{"lab.fallbacks"}

	// KeyLabGenomes stores the active genome of every lab for the current
	// run. Each lab picks its own entry by name.
	KeyLabGenomes = Key[map[string]Genome]{"analysis.genomes"}

	// KeyLabOutputs stores finished lab outputs keyed by lab name. Parallel
	// lab executions are merged by unioning this map.
	KeyLabOutputs = Key[map[string]LabOutput]{"analysis.lab_outputs"}

	// KeyJudgeDecision stores the Judge output.
	KeyJudgeDecision = Key[JudgeDecision]{"analysis.judge_decision"}

	// KeyExecutionID stores a unique identifier for this analysis run,
	// useful for tracing and correlation.
	KeyExecutionID = Key[string]{"execution.execution_id"}
)

// deepCopyValue creates a deep copy of a value to ensure true immutability.
// It handles slices, maps, and other reference types that would otherwise
// allow external modification of State data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(copiedValue(v.Index(i)))
		}
		return newSlice.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		newMap := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			newMap.SetMapIndex(copiedValue(iter.Key()), copiedValue(iter.Value()))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(copiedValue(v.Elem()))
		return newPtr.Interface()

	case reflect.Struct:
		// Unexported fields keep their zero value; every domain type
		// exports its fields.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(copiedValue(v.Field(i)))
			}
		}
		return newStruct.Interface()

	default:
		return value
	}
}

// copiedValue deep copies v and converts the result back to a reflect.Value
// of v's static type. Nil interfaces inside containers map to the zero
// value instead of an invalid reflect.Value.
func copiedValue(v reflect.Value) reflect.Value {
	if (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) && v.IsNil() {
		return reflect.Zero(v.Type())
	}
	copied := reflect.ValueOf(deepCopyValue(v.Interface()))
	if !copied.IsValid() {
		return reflect.Zero(v.Type())
	}
	if copied.Type() != v.Type() && copied.Type().ConvertibleTo(v.Type()) {
		return copied.Convert(v.Type())
	}
	return copied
}

// State represents an immutable collection of lab data that flows
// through the pipeline. It uses copy-on-write semantics to ensure
// thread-safety and prevent unintended mutations. State is the primary
// data structure for passing information between Units.
type State struct {
	// data holds the key-value pairs that make up the state.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewState creates a new empty State.
// The returned State is ready to use and can be safely shared across
// goroutines.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	event, ok := Get(state, KeyEvent)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// GetRaw is a method version of Get that uses a string key.
// For type safety, use the generic Get function instead.
func (s State) GetRaw(keyName string) (any, bool) {
	value, exists := s.data[keyName]
	if !exists {
		return nil, false
	}
	return deepCopyValue(value), true
}

// With creates a new State with the specified key-value pair added or
// updated. It implements copy-on-write semantics, returning a new State
// instance while leaving the original unchanged.
//
// Example:
//
//	next := With(state, KeyLabName, SafetyLab)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithRaw is a method version of With that uses a string key and allows
// chaining. For type safety, use the generic With function instead.
func (s State) WithRaw(keyName string, value any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	newData[keyName] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added
// or updated. It performs a single clone operation, which makes it cheaper
// than chaining With calls.
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s.data))
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// AppendFallback records that stage degraded to its deterministic fallback.
func (s State) AppendFallback(stage string) State {
	current, _ := Get(s, KeyFallbacks)
	return With(s, KeyFallbacks, append(current, stage))
}
