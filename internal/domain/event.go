package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EventType classifies the driving scenario an Event was segmented from.
type EventType string

// Supported event types.
const (
	EventCutIn          EventType = "cut_in"
	EventPedestrian     EventType = "pedestrian"
	EventAdverseWeather EventType = "adverse_weather"
	EventCloseFollowing EventType = "close_following"
	EventSuddenBrake    EventType = "sudden_brake"
	EventLaneChange     EventType = "lane_change"
	EventOther          EventType = "other"
)

// EventTypes lists every supported event type in declaration order.
var EventTypes = []EventType{
	EventCutIn, EventPedestrian, EventAdverseWeather, EventCloseFollowing,
	EventSuddenBrake, EventLaneChange, EventOther,
}

// Words returns the event type with underscores replaced by spaces,
// e.g. "cut in" for cut_in.
func (t EventType) Words() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// Severity grades how critical an event is.
type Severity string

// Supported severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is the immutable input both labs analyze. It is produced by the
// upstream event detector and is never mutated by the core.
type Event struct {
	// ID identifies the event in the event store. Ad-hoc events get an id
	// assigned when they are stored.
	ID string `json:"id" yaml:"id"`

	// Type is the scenario classification.
	Type EventType `json:"event_type" yaml:"event_type" validate:"required"`

	// Severity defaults to medium when empty.
	Severity Severity `json:"severity" yaml:"severity"`

	// StartFrame and EndFrame bound the event in the source recording.
	StartFrame int `json:"start_frame" yaml:"start_frame" validate:"min=0"`
	EndFrame   int `json:"end_frame" yaml:"end_frame" validate:"min=0"`

	// StartTimestamp and EndTimestamp are seconds from recording start.
	StartTimestamp float64 `json:"start_timestamp" yaml:"start_timestamp" validate:"min=0"`
	EndTimestamp   float64 `json:"end_timestamp" yaml:"end_timestamp" validate:"min=0"`

	EgoSpeedMPS   *float64 `json:"ego_speed_mps,omitempty" yaml:"ego_speed_mps,omitempty" validate:"omitempty,min=0"`
	RoadType      string   `json:"road_type,omitempty" yaml:"road_type,omitempty"`
	Weather       string   `json:"weather,omitempty" yaml:"weather,omitempty"`
	LeadDistanceM *float64 `json:"lead_distance_m,omitempty" yaml:"lead_distance_m,omitempty" validate:"omitempty,min=0"`

	CutInFlag      bool   `json:"cut_in_flag" yaml:"cut_in_flag"`
	PedestrianFlag bool   `json:"pedestrian_flag" yaml:"pedestrian_flag"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// EffectiveSeverity returns the event severity, defaulting to medium.
func (e Event) EffectiveSeverity() Severity {
	if e.Severity == "" {
		return SeverityMedium
	}
	return e.Severity
}

// Validate checks the invariants struct tags cannot express.
func (e Event) Validate() error {
	verr := NewValidationError("event")
	if !slices.Contains(EventTypes, e.Type) {
		verr.AddError(fmt.Sprintf("unknown event type %q", e.Type))
	}
	switch e.Severity {
	case "", SeverityLow, SeverityMedium, SeverityHigh:
	default:
		verr.AddError(fmt.Sprintf("unknown severity %q", e.Severity))
	}
	if e.EndFrame < e.StartFrame {
		verr.AddError(fmt.Sprintf("end_frame %d precedes start_frame %d", e.EndFrame, e.StartFrame))
	}
	if e.EndTimestamp < e.StartTimestamp {
		verr.AddError("end_timestamp precedes start_timestamp")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
