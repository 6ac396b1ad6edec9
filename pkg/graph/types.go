package graph

import "time"

// Event is a named, timestamped message carrying an optional payload,
// routed both to the Flow's internal subject and to the host emitter.
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
}

// CallBag is the call-time parameter bag and emitter handle passed to a
// node's Execute function.
type CallBag struct {
	Params map[string]any
	Emit   func(eventType string, payload any)
}

// WaitStrategy governs when a when-gate resolves.
type WaitStrategy string

const (
	WaitSingle    WaitStrategy = "single"
	WaitAll       WaitStrategy = "all"
	WaitCorrelate WaitStrategy = "correlate"
)

// WhenGate is a pre-execute barrier that blocks a node until a configured
// set of events arrives under the chosen strategy.
type WhenGate struct {
	Events      []string
	Timeout     time.Duration
	Strategy    WaitStrategy
	Correlation func(events map[string]Event) bool
}

// RetryPolicy is a fixed-delay retry model: a node gets up to MaxAttempts
// calls to Execute, with a constant Delay between attempts. There is no
// exponential back-off and no jitter.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// OnRetryFailed is invoked once, after the final attempt fails, before
	// ContinueOnFailed is consulted.
	OnRetryFailed func(err error, view *View)

	// ContinueOnFailed swallows the final error instead of propagating it.
	ContinueOnFailed bool
}

// NextEntry is one candidate successor: either unconditional (Condition
// nil) or guarded by a predicate evaluated against the live context view.
type NextEntry struct {
	Node      string
	Condition func(*View) bool

	// Label is an optional humanized description of Condition, shown by
	// pkg/visualization on the rendered edge. Code-built nodes may set it
	// directly; loader.go sets it to the raw expr source for YAML-loaded
	// conditions.
	Label string
}

// NextFunc computes the successor list dynamically from the live context.
// It is the Computed arm of the Next sum type.
type NextFunc func(*View) []NextEntry

// Next is the sum type `ListOf(NextEntry) | Computed(ctx -> Next)`.
// A zero-value Next resolves to no successors.
type Next struct {
	entries []NextEntry
	fn      NextFunc
}

// Seq builds an unconditional, ordered successor list.
func Seq(names ...string) Next {
	entries := make([]NextEntry, len(names))
	for i, n := range names {
		entries[i] = NextEntry{Node: n}
	}
	return Next{entries: entries}
}

// Guarded builds a successor list where each entry may carry a predicate.
func Guarded(entries ...NextEntry) Next {
	return Next{entries: entries}
}

// Computed builds a successor list resolved at traversal time from the
// live context.
func Computed(fn NextFunc) Next {
	return Next{fn: fn}
}

// IsEmpty reports whether Next was never configured.
func (n Next) IsEmpty() bool {
	return n.fn == nil && len(n.entries) == 0
}

func (n Next) resolve(view *View) []NextEntry {
	if n.fn != nil {
		return n.fn(view)
	}
	return n.entries
}

// StaticEntries returns the declared successor entries and true when Next
// was built with Seq/Guarded (a fixed list known without running the
// graph). It returns (nil, false) for Computed, whose successors can only
// be known at traversal time; pkg/visualization uses this to distinguish
// drawable edges from a "computed successors" note.
func (n Next) StaticEntries() ([]NextEntry, bool) {
	if n.fn != nil {
		return nil, false
	}
	return n.entries, true
}

// NodeConfig is the static configuration of one node within a graph.
type NodeConfig struct {
	// Name must be unique within a graph.
	Name string

	// Execute receives a write-intercepting view of the context and the
	// call-time param bag.
	Execute func(ctx *View, call *CallBag) error

	// Next resolves to the successor candidates, walked sequentially in
	// declaration order after the node completes.
	Next Next

	// Condition gates execution entirely; when false the node is skipped
	// silently, with no events and no successor traversal.
	Condition func(*View) bool

	// ConditionLabel is an optional humanized description of Condition,
	// shown by pkg/visualization. loader.go sets it to the raw expr
	// source for YAML-loaded conditions.
	ConditionLabel string

	// Params optionally validates the call-time param bag before Execute
	// runs.
	Params Schema

	// Retry configures the retry loop. Nil means a single attempt, no
	// retry.
	Retry *RetryPolicy

	// When is the event-wait gate evaluated before Execute, unless the
	// dispatch itself was triggered by an event.
	When *WhenGate

	// Events lists the event names that, when emitted, dispatch this node
	// out-of-band with a freshly cloned context merged with the payload.
	Events []string

	// Priority only matters to Controller.ExecuteParallel's start order
	// across independent graphs; it has no effect on successor execution
	// within a single Flow, which is always sequential and declaration
	// ordered.
	Priority int
}

// EventEmitter is the listener-style surface the Engine consumes from the
// host application. Any conforming implementation may be injected into a
// GraphDefinition; eventbus.RedisBus is the Redis-backed one.
type EventEmitter interface {
	Emit(eventType string, payload any)
	On(eventType string, handler func(payload any))
	Off(eventType string, handler func(payload any))
	RemoveAllListeners(eventType string)
	RawListeners(eventType string) []func(payload any)
}

// GraphDefinition is the static description a Flow is built from.
type GraphDefinition struct {
	Name         string
	Schema       Schema
	Context      map[string]any
	Nodes        []NodeConfig
	EntryNode    string
	Events       []string
	EventEmitter EventEmitter
	OnError      func(err error, context map[string]any)
}
