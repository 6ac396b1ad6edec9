package graph

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionCache memoizes compiled expr programs for loader.go's
// data-driven conditions (YAML graphs can only express guards as
// strings; node configs built directly in Go use native closures and
// never touch it). Eviction is CLOCK (second-chance): a fixed slab of
// slots and a sweeping hand, rather than a recency list reordered on
// every hit. A hit only flips a reference bit, so reads never contend
// on relinking a shared structure.
type conditionCache struct {
	mu       sync.Mutex
	capacity int
	slots    []clockSlot
	index    map[string]int
	hand     int
}

type clockSlot struct {
	key        string
	program    *vm.Program
	referenced bool
}

func newConditionCache(capacity int) *conditionCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &conditionCache{
		capacity: capacity,
		slots:    make([]clockSlot, 0, capacity),
		index:    make(map[string]int, capacity),
	}
}

// get returns the cached program for expression, if present, and gives
// it a second chance against the next eviction sweep.
func (c *conditionCache) get(expression string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[expression]
	if !ok {
		return nil, false
	}
	c.slots[i].referenced = true
	return c.slots[i].program, true
}

func (c *conditionCache) put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[expression]; ok {
		c.slots[i].program = program
		c.slots[i].referenced = true
		return
	}

	if len(c.slots) < c.capacity {
		c.index[expression] = len(c.slots)
		c.slots = append(c.slots, clockSlot{key: expression, program: program, referenced: true})
		return
	}

	i := c.evict()
	delete(c.index, c.slots[i].key)
	c.slots[i] = clockSlot{key: expression, program: program, referenced: true}
	c.index[expression] = i
}

// evict sweeps the clock hand until it lands on an unreferenced slot,
// clearing reference bits along the way. Every slot gets at most two
// passes before being taken, the standard CLOCK guarantee.
func (c *conditionCache) evict() int {
	for {
		i := c.hand
		c.hand = (c.hand + 1) % len(c.slots)
		if c.slots[i].referenced {
			c.slots[i].referenced = false
			continue
		}
		return i
	}
}

// compileAndCache compiles expression as a boolean-returning program
// against env's shape and stores it, returning the cached copy on a
// subsequent call with the same expression string. Names absent from env
// are accepted at compile time and looked up in the run-time environment.
func (c *conditionCache) compileAndCache(expression string, env any) (*vm.Program, error) {
	if program, ok := c.get(expression); ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	c.put(expression, program)
	return program, nil
}

func (c *conditionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *conditionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = c.slots[:0]
	c.index = make(map[string]int, c.capacity)
	c.hand = 0
}
