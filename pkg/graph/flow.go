// Package graph implements the typed, reactive workflow engine: a Flow
// executes a directed graph of user-defined nodes against a
// schema-validated shared context, with event-driven dispatch and a
// reactive observation layer over both.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smilemakc/flowgraph/internal/application/observer"
	"github.com/smilemakc/flowgraph/internal/config"
	"github.com/smilemakc/flowgraph/internal/infrastructure/logger"
)

// defaultLogBufferSize bounds GetLogs: every Flow builds its own logger
// with a ring buffer of this many lines, generous enough to cover a
// typical execution's worth of nodeStarted/nodeCompleted chatter.
const defaultLogBufferSize = 500

// Flow is one instantiated graph bound to a schema and an initial
// context. It exclusively owns the context, the node registry, and both
// subjects (the event stream and the latest-state snapshot); Observers
// hold only a subscription to those, and Destroy terminates them all.
type Flow struct {
	mu sync.RWMutex

	id   string
	name string

	ctx *Context

	nodes     map[string]*NodeConfig
	nodeOrder []string

	em           *eventManager
	hostEmitter  EventEmitter
	onError      func(err error, context map[string]any)
	graphEvents  map[string]bool // GraphDefinition.Events, for setupGraphEventListeners
	def          GraphDefinition

	obsManager *observer.ObserverManager
	obsHub     *streamHub
	log        *logger.Logger

	destroyed bool
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New constructs a Flow from a graph definition, parsing the initial
// context against the schema and wiring node-declared listeners.
func New(def GraphDefinition) (*Flow, error) {
	ctx, err := NewContext(def.Schema, def.Context)
	if err != nil {
		return nil, err
	}

	f := &Flow{
		id:          uuid.NewString(),
		name:        def.Name,
		ctx:         ctx,
		nodes:       make(map[string]*NodeConfig),
		em:          newEventManager(),
		hostEmitter: def.EventEmitter,
		onError:     def.OnError,
		graphEvents: make(map[string]bool),
		def:         def,
		obsManager:  observer.NewObserverManager(),
		obsHub:      newStreamHub(),
		log:         logger.New(config.LoggingConfig{Level: "info", Format: "json", BufferSize: defaultLogBufferSize}),
		doneCh:      make(chan struct{}),
	}

	if err := f.obsManager.Register(f.obsHub); err != nil {
		return nil, err
	}

	for _, evt := range def.Events {
		f.graphEvents[evt] = true
	}

	for i := range def.Nodes {
		n := def.Nodes[i]
		if err := f.addNodeLocked(n); err != nil {
			return nil, err
		}
	}

	f.em.setupEventListeners(f.nodes, f.nodeOrder)

	return f, nil
}

// ID returns the Flow instance's UUID.
func (f *Flow) ID() string { return f.id }

func (f *Flow) addNodeLocked(n NodeConfig) error {
	if _, exists := f.nodes[n.Name]; exists {
		return fmt.Errorf("node %q already registered", n.Name)
	}
	copyNode := n
	f.nodes[n.Name] = &copyNode
	f.nodeOrder = append(f.nodeOrder, n.Name)
	return nil
}

// AddNode registers a node, re-running listener setup so the node's
// declared events take effect immediately.
func (f *Flow) AddNode(n NodeConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.addNodeLocked(n); err != nil {
		return err
	}
	f.em.setupEventListeners(f.nodes, f.nodeOrder)
	return nil
}

// RemoveNode unregisters a node by name. Unknown names are a no-op.
func (f *Flow) RemoveNode(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.nodes[name]; !ok {
		return
	}
	delete(f.nodes, name)
	for i, n := range f.nodeOrder {
		if n == name {
			f.nodeOrder = append(f.nodeOrder[:i], f.nodeOrder[i+1:]...)
			break
		}
	}
	f.em.setupEventListeners(f.nodes, f.nodeOrder)
}

// GetNodes returns the registered node names in declaration order.
func (f *Flow) GetNodes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.nodeOrder...)
}

// GetContext returns a deep-enough clone of the current context.
func (f *Flow) GetContext() map[string]any {
	return f.ctx.Snapshot()
}

// GetLogs returns the Flow's buffered log lines, oldest first. The buffer
// keeps the most recent defaultLogBufferSize lines.
func (f *Flow) GetLogs() []string {
	return f.log.Entries()
}

// ClearLogs empties the buffered log lines without affecting any
// external sink the logger also writes to.
func (f *Flow) ClearLogs() {
	f.log.ClearEntries()
}

// SetVerbose widens or narrows what the log buffer captures (debug vs.
// info and above).
func (f *Flow) SetVerbose(verbose bool) {
	f.log.SetVerbose(verbose)
}

// Load clears the registry and installs a fresh graph definition,
// re-parsing the initial context and rebuilding node-declared listeners.
// External listeners (nodeStarted, nodeCompleted, user Flow.On
// subscriptions registered on the host emitter) are untouched.
func (f *Flow) Load(def GraphDefinition) error {
	ctx, err := NewContext(def.Schema, def.Context)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ctx = ctx
	f.nodes = make(map[string]*NodeConfig)
	f.nodeOrder = nil
	f.def = def
	f.graphEvents = make(map[string]bool)
	for _, evt := range def.Events {
		f.graphEvents[evt] = true
	}
	if def.EventEmitter != nil {
		f.hostEmitter = def.EventEmitter
	}
	if def.OnError != nil {
		f.onError = def.OnError
	}

	for i := range def.Nodes {
		if err := f.addNodeLocked(def.Nodes[i]); err != nil {
			return err
		}
	}

	f.em.setupEventListeners(f.nodes, f.nodeOrder)
	return nil
}

// Destroy terminates the Flow's subjects. Subsequent Observer
// subscriptions complete immediately (see Observe).
func (f *Flow) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.doneCh) })
}

func (f *Flow) isDestroyed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.destroyed
}

// done returns the channel closed when Destroy is called; every Observer
// stream selects on it to complete without a goroutine leak.
func (f *Flow) done() <-chan struct{} {
	return f.doneCh
}

// Observe returns a handle onto the Flow's derived reactive streams:
// state, node, nodes, property, event, until, and the one-shot
// waitForCorrelatedEvents.
func (f *Flow) Observe() *Observer {
	return &Observer{flow: f}
}

// On registers an external handler for eventType on the host emitter.
// Node-declared listeners set up through NodeConfig.Events are managed
// separately and are unaffected by On/Off.
func (f *Flow) On(eventType string, handler func(payload any)) {
	if f.hostEmitter != nil {
		f.hostEmitter.On(eventType, handler)
	}
}

// Off removes a handler previously registered with On.
func (f *Flow) Off(eventType string, handler func(payload any)) {
	if f.hostEmitter != nil {
		f.hostEmitter.Off(eventType, handler)
	}
}

// Emit publishes eventType both on the internal subject and the host
// emitter, then dispatches every node listening for it with a fresh
// clone of the context, sequentially, in registration order
// (triggeredByEvent=true, so these dispatches never cascade successors).
// When eventType is one of GraphDefinition.Events, it instead runs the
// entry node through runFromGraphEvent, and node-declared listeners for
// that event are not dispatched.
func (f *Flow) Emit(eventType string, payload any) {
	evt := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	f.publish(observer.EventType(eventType), nil, nil, nil, nil, "", nil, payload, f.ctx.Snapshot())
	if f.hostEmitter != nil {
		f.hostEmitter.Emit(eventType, payload)
	}
	f.em.handle(evt)

	if f.graphEvents[eventType] {
		f.runFromGraphEvent(eventType, payload)
		return
	}

	for _, name := range f.em.nodesListeningTo(eventType) {
		overlay := f.ctx.Snapshot()
		if m, ok := payload.(map[string]any); ok {
			for k, v := range m {
				overlay[k] = v
			}
		}
		clonedCtx, err := NewContext(f.schemaOrNoop(), overlay)
		if err != nil {
			f.log.Error("event-triggered dispatch: context clone rejected", "node", name, "event", eventType, "error", err)
			continue
		}
		if err := f.executeNode(name, clonedCtx, nil, true); err != nil {
			f.log.Error("event-triggered node failed", "node", name, "event", eventType, "error", err)
		}
	}
}

func (f *Flow) schemaOrNoop() Schema {
	if f.def.Schema != nil {
		return f.def.Schema
	}
	return NoopSchema{}
}

// runFromGraphEvent implements setupGraphEventListeners: a declared graph
// event clones C0 (overlaid by the payload) and runs it through
// execute(entryNode, ...), wrapped in graphStarted/graphCompleted/graphError.
func (f *Flow) runFromGraphEvent(eventType string, payload any) {
	overlay := cloneMap(f.def.Context)
	if m, ok := payload.(map[string]any); ok {
		for k, v := range m {
			overlay[k] = v
		}
	}
	clonedCtx, err := NewContext(f.schemaOrNoop(), overlay)
	if err != nil {
		f.log.Error("graph event dispatch: initial context rejected", "event", eventType, "error", err)
		return
	}

	prev := f.ctx
	f.mu.Lock()
	f.ctx = clonedCtx
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.ctx = prev
		f.mu.Unlock()
	}()

	if _, err := f.Execute(f.def.EntryNode, nil, nil); err != nil {
		f.log.Error("graph event execution failed", "event", eventType, "error", err)
	}
}

// Execute runs startNode to completion (cascading its successors),
// emitting graphStarted first and graphCompleted or graphError after.
func (f *Flow) Execute(startNode string, params map[string]any, contextOverlay map[string]any) (map[string]any, error) {
	if contextOverlay != nil {
		for k, v := range contextOverlay {
			f.ctx.Set(k, v)
		}
	}

	f.log.Info("graph started", "graph", f.name, "start_node", startNode)
	f.publish(observer.EventTypeGraphStarted, nil, nil, nil, nil, "running", nil, nil, f.ctx.Snapshot())

	var callBag *CallBag
	if params != nil {
		callBag = &CallBag{Params: params, Emit: f.Emit}
	}

	err := f.executeNode(startNode, f.ctx, callBag, false)
	if err != nil {
		f.log.Error("graph failed", "graph", f.name, "error", err)
		f.publish(observer.EventTypeGraphError, nil, nil, nil, nil, "failed", err, nil, f.ctx.Snapshot())
		if f.onError != nil {
			f.onError(err, f.ctx.Snapshot())
		}
		return nil, err
	}

	snapshot := f.ctx.Snapshot()
	f.log.Info("graph completed", "graph", f.name)
	f.publish(observer.EventTypeGraphCompleted, nil, nil, nil, nil, "completed", nil, nil, snapshot)
	return snapshot, nil
}

// emitStateChange implements the stateChangeEmitter seam a View uses.
func (f *Flow) emitStateChange(nodeName, property string, oldValue, newValue any, snapshot map[string]any) {
	name := nodeName
	prop := property
	f.publish(observer.EventTypeNodeStateChange, &name, &prop, oldValue, newValue, "", nil, nil, snapshot)
	f.em.handle(Event{Type: "nodeStateChanged", Payload: map[string]any{"name": nodeName, "property": property}, Timestamp: time.Now()})
}

// publish is the single seam every Flow-originated event funnels through:
// it notifies the push-based observer.ObserverManager (which both
// external sinks and the reactive pkg/graph Observer subscribe to).
func (f *Flow) publish(evtType observer.EventType, nodeName, property *string, oldValue, newValue any, status string, err error, payload any, snapshot map[string]any) {
	if f.isDestroyed() {
		return
	}
	f.obsManager.Notify(context.Background(), observer.Event{
		Type:      evtType,
		FlowID:    f.id,
		GraphName: f.name,
		Timestamp: time.Now(),
		NodeName:  nodeName,
		Property:  property,
		Status:    status,
		Error:     err,
		OldValue:  oldValue,
		NewValue:  newValue,
		Payload:   payload,
		Snapshot:  snapshot,
	})
}
