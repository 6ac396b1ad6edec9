package graph

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/smilemakc/flowgraph/internal/application/observer"
)

// StreamEvent is one emission on a derived Observer stream: the context
// (whole or restricted, depending on the stream) plus enough provenance
// to tell which node and property produced it.
type StreamEvent struct {
	NodeName  string
	Property  string
	Context   map[string]any
	EventType string
	Payload   any
	Timestamp time.Time
}

// Stream is a live subscription onto one of a Flow's derived reactive
// views. It completes (closes its channel) when the owning Flow is
// destroyed or when Close is called, whichever happens first.
type Stream struct {
	ch     chan StreamEvent
	cancel func()
}

// C returns the channel to range over; it closes on completion.
func (s *Stream) C() <-chan StreamEvent { return s.ch }

// Close unsubscribes the stream before the owning Flow is destroyed.
func (s *Stream) Close() { s.cancel() }

// Observer is the reactive derivation layer: filtered,
// deep-equality-deduplicated views over a Flow's event and state
// subjects, obtained through Flow.Observe.
type Observer struct {
	flow *Flow
}

func (o *Observer) newStream(bufSize int, initial *StreamEvent, match func(observer.Event) (StreamEvent, bool)) *Stream {
	return o.newDebouncedStream(bufSize, initial, 0, match)
}

// newDebouncedStream is newStream plus a trailing-edge debounce: when
// debounce > 0, a burst of matching events within the window coalesces
// into a single emission of the most recent one, fired once the window
// goes quiet.
func (o *Observer) newDebouncedStream(bufSize int, initial *StreamEvent, debounce time.Duration, match func(observer.Event) (StreamEvent, bool)) *Stream {
	id, raw := o.flow.obsHub.subscribe()
	out := make(chan StreamEvent, bufSize)
	stop := make(chan struct{})
	var stopOnce sync.Once
	stream := &Stream{
		ch: out,
		cancel: func() {
			o.flow.obsHub.unsubscribe(id)
			stopOnce.Do(func() { close(stop) })
		},
	}

	go func() {
		defer close(out)
		var last *StreamEvent
		var pending *StreamEvent
		var timer *time.Timer

		emit := func(se StreamEvent) {
			if last != nil && sameStreamEvent(*last, se) {
				return
			}
			cp := se
			last = &cp
			select {
			case out <- se:
			case <-o.flow.done():
			case <-stop:
			}
		}

		flushPending := func() {
			if pending != nil {
				emit(*pending)
				pending = nil
			}
		}

		if initial != nil {
			emit(*initial)
		}

		for {
			var timerC <-chan time.Time
			if timer != nil {
				timerC = timer.C
			}

			select {
			case evt, ok := <-raw:
				if !ok {
					flushPending()
					return
				}
				se, ok := match(evt)
				if !ok {
					continue
				}
				if debounce <= 0 {
					emit(se)
					continue
				}
				cp := se
				pending = &cp
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounce)
				}
			case <-timerC:
				timer = nil
				flushPending()
			case <-o.flow.done():
				return
			case <-stop:
				return
			}
		}
	}()

	return stream
}

func sameStreamEvent(a, b StreamEvent) bool {
	return a.NodeName == b.NodeName &&
		a.Property == b.Property &&
		a.EventType == b.EventType &&
		reflect.DeepEqual(a.Context, b.Context) &&
		reflect.DeepEqual(a.Payload, b.Payload)
}

// State streams the whole context on every state change, optionally
// restricted to the named properties, with an initial emission of the
// current snapshot so subscribers never hang on idle state. It is
// equivalent to StateWithOptions(StateOptions{Properties: properties}).
func (o *Observer) State(properties ...string) *Stream {
	return o.StateWithOptions(StateOptions{Properties: properties})
}

// StateOptions configures State's full form. A letter-by-letter
// progressive-rendering mode is deliberately absent; Debounce and
// Properties are the core options.
type StateOptions struct {
	// Properties restricts emissions to state changes of these keys. Empty
	// means every property change.
	Properties []string

	// Debounce collapses a burst of matching changes within the window
	// into a single emission of the most recent one.
	Debounce time.Duration
}

// StateWithOptions is State's full form, adding the debounce window.
func (o *Observer) StateWithOptions(opts StateOptions) *Stream {
	want := toSet(opts.Properties)
	match := func(evt observer.Event) (StreamEvent, bool) {
		if evt.Type != observer.EventTypeNodeStateChange {
			return StreamEvent{}, false
		}
		if len(want) > 0 && (evt.Property == nil || !want[*evt.Property]) {
			return StreamEvent{}, false
		}
		return streamEventFromStateChange(evt), true
	}
	initial := &StreamEvent{Context: o.flow.GetContext(), Timestamp: time.Now()}
	return o.newDebouncedStream(32, initial, opts.Debounce, match)
}

// Node streams the context at each state change attributable to name.
func (o *Observer) Node(name string) *Stream {
	return o.Nodes(name)
}

// Nodes streams the context at each state change attributable to any of
// names.
func (o *Observer) Nodes(names ...string) *Stream {
	want := toSet(names)
	match := func(evt observer.Event) (StreamEvent, bool) {
		if evt.Type != observer.EventTypeNodeStateChange || evt.NodeName == nil {
			return StreamEvent{}, false
		}
		if !want[*evt.NodeName] {
			return StreamEvent{}, false
		}
		return streamEventFromStateChange(evt), true
	}
	return o.newStream(32, nil, match)
}

// Property streams objects restricted to the named keys plus the name of
// the emitting node, with an initial emission derived from the current
// snapshot.
func (o *Observer) Property(keys ...string) *Stream {
	want := toSet(keys)
	restrict := func(snapshot map[string]any) map[string]any {
		out := make(map[string]any, len(want))
		for k := range want {
			if v, ok := snapshot[k]; ok {
				out[k] = v
			}
		}
		return out
	}

	match := func(evt observer.Event) (StreamEvent, bool) {
		if evt.Type != observer.EventTypeNodeStateChange {
			return StreamEvent{}, false
		}
		if len(want) > 0 && (evt.Property == nil || !want[*evt.Property]) {
			return StreamEvent{}, false
		}
		se := streamEventFromStateChange(evt)
		se.Context = restrict(se.Context)
		return se, true
	}
	initial := &StreamEvent{Context: restrict(o.flow.GetContext()), Timestamp: time.Now()}
	return o.newStream(32, initial, match)
}

// Event streams raw events of the given type (graphStarted, nodeError,
// a user-defined event name, ...).
func (o *Observer) Event(eventType string) *Stream {
	match := func(evt observer.Event) (StreamEvent, bool) {
		if string(evt.Type) != eventType {
			return StreamEvent{}, false
		}
		se := StreamEvent{EventType: eventType, Payload: evt.Payload, Timestamp: evt.Timestamp}
		if evt.NodeName != nil {
			se.NodeName = *evt.NodeName
		}
		return se, true
	}
	return o.newStream(32, nil, match)
}

// Until resolves with the first emission on stream matching predicate,
// unsubscribing as soon as it does. It returns an error if the Flow is
// destroyed first.
func (o *Observer) Until(stream *Stream, predicate func(StreamEvent) bool) (StreamEvent, error) {
	defer stream.Close()
	for {
		select {
		case se, ok := <-stream.C():
			if !ok {
				return StreamEvent{}, fmt.Errorf("graph: stream completed before a matching emission")
			}
			if predicate(se) {
				return se, nil
			}
		case <-o.flow.done():
			return StreamEvent{}, fmt.Errorf("graph: flow destroyed while waiting")
		}
	}
}

// WaitForCorrelatedEvents gathers one event of each listed type and
// invokes correlation once all are present. Unlike a node's when-gate
// (event_manager.go), this is a one-shot operation: a failed correlation
// rejects immediately with CorrelationFailedError rather than discarding
// and continuing to listen.
func (o *Observer) WaitForCorrelatedEvents(types []string, timeout time.Duration, correlation func(map[string]Event) bool) (map[string]Event, error) {
	want := toSet(types)
	id, raw := o.flow.obsHub.subscribe()
	defer o.flow.obsHub.unsubscribe(id)

	collected := make(map[string]Event, len(want))

	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	deadline := time.After(timeout)

	for {
		select {
		case evt, ok := <-raw:
			if !ok {
				return nil, fmt.Errorf("graph: observer stream closed")
			}
			if !want[string(evt.Type)] {
				continue
			}
			collected[string(evt.Type)] = Event{Type: string(evt.Type), Payload: evt.Payload, Timestamp: evt.Timestamp}
			if len(collected) < len(want) {
				continue
			}
			if correlation == nil || correlation(collected) {
				return collected, nil
			}
			return nil, &CorrelationFailedError{Node: "<observer>", Events: types}
		case <-deadline:
			return nil, &EventWaitTimeoutError{Node: "<observer>", Events: types, Strategy: string(WaitCorrelate)}
		case <-o.flow.done():
			return nil, fmt.Errorf("graph: flow destroyed while waiting")
		}
	}
}

func streamEventFromStateChange(evt observer.Event) StreamEvent {
	se := StreamEvent{Context: evt.Snapshot, Timestamp: evt.Timestamp, EventType: string(evt.Type)}
	if evt.NodeName != nil {
		se.NodeName = *evt.NodeName
	}
	if evt.Property != nil {
		se.Property = *evt.Property
	}
	return se
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
