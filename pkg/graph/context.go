package graph

import (
	"fmt"
	"reflect"
	"sync"
)

// Context holds the typed graph state: an ordered mapping from string keys
// to values, constrained by a Schema. It is owned exclusively by the Flow
// that created it; node bodies only ever see it through a View.
type Context struct {
	mu     sync.Mutex
	schema Schema
	keys   []string
	values map[string]any
}

// NewContext parses initial against schema once and returns the resulting
// Context. The caller-supplied initial map is never aliased.
func NewContext(schema Schema, initial map[string]any) (*Context, error) {
	if schema == nil {
		schema = NoopSchema{}
	}

	parsed, err := schema.Parse(cloneMap(initial))
	if err != nil {
		return nil, &ContextValidationError{Node: "<init>", Message: err.Error()}
	}

	c := &Context{schema: schema, values: make(map[string]any, len(parsed))}
	for k, v := range parsed {
		c.setLocked(k, v)
	}
	return c, nil
}

func (c *Context) setLocked(key string, value any) {
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the current value for key and whether it is present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Set assigns key unconditionally, bypassing change detection. Intended
// for Flow-internal bootstrapping (overlay merges); node bodies must go
// through a View so that state-change events fire.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// Snapshot returns a top-level copy of the whole context. The returned
// map carries no key order; first-introduction order is kept only in the
// Context itself.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.values))
	for _, k := range c.keys {
		out[k] = c.values[k]
	}
	return out
}

// validate runs the checkpoint validation: the whole context against the
// schema, immediately before a node is marked complete.
func (c *Context) validate() error {
	snap := c.Snapshot()
	_, err := c.schema.Parse(snap)
	return err
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// stateChangeEmitter is the seam a View uses to publish nodeStateChanged
// events. Flow implements it; tests substitute a recording stub.
type stateChangeEmitter interface {
	emitStateChange(nodeName, property string, oldValue, newValue any, snapshot map[string]any)
}

// lastChange is the (property, oldValue, newValue) tuple most recently
// emitted by a View. Identical back-to-back state changes for the same
// property are suppressed against it.
type lastChange struct {
	property string
	old, new any
}

// View is the write-intercepting mediator handed to a node's Execute
// function. Every Set compares the
// previous value to the new one with reflect.DeepEqual; unchanged writes
// are no-ops, and changed writes are immediately published as
// nodeStateChanged events through the owning Flow, deduplicated against
// the immediately preceding emission for the same property.
type View struct {
	ctx      *Context
	nodeName string
	emitter  stateChangeEmitter
	last     *lastChange
}

func newView(ctx *Context, nodeName string, emitter stateChangeEmitter) *View {
	return &View{ctx: ctx, nodeName: nodeName, emitter: emitter}
}

// Get reads the live value of key.
func (v *View) Get(key string) (any, bool) {
	return v.ctx.Get(key)
}

// MustGet reads key, returning nil when absent. Convenient for node
// bodies that treat a missing key as its zero value.
func (v *View) MustGet(key string) any {
	val, _ := v.ctx.Get(key)
	return val
}

// Set assigns key to value. If value is deeply equal to the current
// value, the call is a no-op (no event). Otherwise the context is updated
// and a nodeStateChanged event is emitted, unless the immediately
// preceding emission for this property carried the same (old, new) pair.
func (v *View) Set(key string, value any) {
	v.ctx.mu.Lock()
	old, existed := v.ctx.values[key]
	changed := !existed || !reflect.DeepEqual(old, value)
	if changed {
		v.ctx.setLocked(key, value)
	}
	snapshot := make(map[string]any, len(v.ctx.values))
	for _, k := range v.ctx.keys {
		snapshot[k] = v.ctx.values[k]
	}
	v.ctx.mu.Unlock()

	if !changed {
		return
	}

	if v.last != nil && v.last.property == key && reflect.DeepEqual(v.last.old, old) && reflect.DeepEqual(v.last.new, value) {
		return
	}
	v.last = &lastChange{property: key, old: old, new: value}

	if v.emitter != nil {
		v.emitter.emitStateChange(v.nodeName, key, old, value, snapshot)
	}
}

// Snapshot returns the whole context as it stands at the time of the call.
func (v *View) Snapshot() map[string]any {
	return v.ctx.Snapshot()
}

func (v *View) String() string {
	return fmt.Sprintf("View(node=%s)", v.nodeName)
}
