// Package observer is the push-based notification bus a Flow uses to fan
// out its event stream to registered sinks. The reactive derived streams
// in pkg/graph (state/node/property/event/until) are themselves built as
// one such sink, layering a broadcast-queue model over the push model
// below.
package observer

import (
	"context"
	"time"
)

// Observer is the core interface for flow execution event observation.
type Observer interface {
	// OnEvent is called when any flow event occurs.
	OnEvent(ctx context.Context, event Event) error

	// Name returns the observer's unique identifier.
	Name() string

	// Filter returns the event filter for this observer (nil = all events).
	Filter() EventFilter
}

// Event represents a single event on a Flow's event subject, carrying
// enough context for sinks to reconstruct what happened without
// re-querying the Flow.
type Event struct {
	Type      EventType
	FlowID    string // Flow instance UUID
	GraphName string // name of the graph definition the Flow was built from
	Timestamp time.Time

	NodeName *string
	Property *string

	Status string
	Error  error

	OldValue any
	NewValue any
	Payload  any
	Snapshot map[string]any

	AttemptNumber *int
	Metadata      map[string]any
	Message       *string
}

// EventType represents the type of a Flow event, matching the stable
// event-name contract of the Engine (graphStarted, nodeCompleted, ...).
type EventType string

const (
	EventTypeGraphStarted    EventType = "graphStarted"
	EventTypeGraphCompleted  EventType = "graphCompleted"
	EventTypeGraphError      EventType = "graphError"
	EventTypeNodeStarted     EventType = "nodeStarted"
	EventTypeNodeCompleted   EventType = "nodeCompleted"
	EventTypeNodeError       EventType = "nodeError"
	EventTypeNodeStateChange EventType = "nodeStateChanged"
)

// EventFilter defines filtering criteria for events.
type EventFilter interface {
	ShouldNotify(event Event) bool
}

// EventTypeFilter filters events by type.
type EventTypeFilter struct {
	allowedTypes map[EventType]bool
}

// NewEventTypeFilter creates a filter for specific event types.
// If no types are specified, it allows all events.
func NewEventTypeFilter(types ...EventType) EventFilter {
	if len(types) == 0 {
		return nil
	}

	filter := &EventTypeFilter{
		allowedTypes: make(map[EventType]bool),
	}
	for _, t := range types {
		filter.allowedTypes[t] = true
	}
	return filter
}

// ShouldNotify checks if the event should trigger notification.
func (f *EventTypeFilter) ShouldNotify(event Event) bool {
	if f == nil || len(f.allowedTypes) == 0 {
		return true
	}
	return f.allowedTypes[event.Type]
}

// FlowIDFilter filters events by Flow instance ID.
type FlowIDFilter struct {
	flowID string
}

// NewFlowIDFilter creates a filter that only passes events for one Flow.
func NewFlowIDFilter(flowID string) EventFilter {
	return &FlowIDFilter{flowID: flowID}
}

// ShouldNotify returns true if the event belongs to the target Flow.
func (f *FlowIDFilter) ShouldNotify(event Event) bool {
	return event.FlowID == f.flowID
}

// NodeNameFilter filters events by node name.
// Non-node events (graphStarted, graphCompleted, ...) always pass through.
type NodeNameFilter struct {
	allowedNames map[string]bool
}

// NewNodeNameFilter creates a filter for specific node names.
// Returns nil if no names are provided (nil filter = all events).
func NewNodeNameFilter(names ...string) EventFilter {
	if len(names) == 0 {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return &NodeNameFilter{allowedNames: m}
}

// ShouldNotify returns true for non-node events or events matching an
// allowed node name.
func (f *NodeNameFilter) ShouldNotify(event Event) bool {
	if event.NodeName == nil {
		return true
	}
	return f.allowedNames[*event.NodeName]
}

// CompoundEventFilter combines multiple filters with AND logic.
// All sub-filters must pass for the event to be notified.
type CompoundEventFilter struct {
	filters []EventFilter
}

// NewCompoundEventFilter creates a filter that requires all sub-filters to
// pass. Nil filters are ignored. Returns nil if no valid filters remain.
func NewCompoundEventFilter(filters ...EventFilter) EventFilter {
	nonNil := make([]EventFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}
	return &CompoundEventFilter{filters: nonNil}
}

// ShouldNotify returns true only if all sub-filters pass.
func (f *CompoundEventFilter) ShouldNotify(event Event) bool {
	for _, filter := range f.filters {
		if !filter.ShouldNotify(event) {
			return false
		}
	}
	return true
}
