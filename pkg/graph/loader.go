package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// NodeBody is a named, reusable node implementation. A YAML graph
// definition has no way to express executable code, so its nodes
// reference a body by "type" name; the body must be registered with a
// NodeBodyRegistry ahead of the ParseYAML call that needs it.
type NodeBody func(ctx *View, call *CallBag) error

// NodeBodyRegistry resolves YAML node "type" names to Go implementations.
type NodeBodyRegistry struct {
	bodies map[string]NodeBody
}

// NewNodeBodyRegistry returns an empty registry.
func NewNodeBodyRegistry() *NodeBodyRegistry {
	return &NodeBodyRegistry{bodies: make(map[string]NodeBody)}
}

// Register binds name to body, overwriting any previous registration.
func (r *NodeBodyRegistry) Register(name string, body NodeBody) {
	r.bodies[name] = body
}

// Has reports whether name has a registered body.
func (r *NodeBodyRegistry) Has(name string) bool {
	_, ok := r.bodies[name]
	return ok
}

func (r *NodeBodyRegistry) get(name string) (NodeBody, bool) {
	b, ok := r.bodies[name]
	return b, ok
}

// LoadError reports a structural problem in a YAML graph definition, with
// enough path context to find it quickly.
type LoadError struct {
	Field   string
	Message string
}

func (e *LoadError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

type yamlGraph struct {
	Name      string         `yaml:"name"`
	EntryNode string         `yaml:"entry_node,omitempty"`
	Context   map[string]any `yaml:"context,omitempty"`
	Events    []string       `yaml:"events,omitempty"`
	Nodes     []yamlNode     `yaml:"nodes"`
}

type yamlNode struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	Condition string        `yaml:"condition,omitempty"`
	Next      []yamlNext    `yaml:"next,omitempty"`
	Events    []string      `yaml:"events,omitempty"`
	When      *yamlWhenGate `yaml:"when,omitempty"`
	Retry     *yamlRetry    `yaml:"retry,omitempty"`
	Priority  int           `yaml:"priority,omitempty"`
}

type yamlNext struct {
	Node      string `yaml:"node"`
	Condition string `yaml:"condition,omitempty"`
}

type yamlWhenGate struct {
	Events    []string `yaml:"events"`
	TimeoutMs int      `yaml:"timeout_ms,omitempty"`
	Strategy  string   `yaml:"strategy,omitempty"`
}

type yamlRetry struct {
	MaxAttempts      int  `yaml:"max_attempts,omitempty"`
	DelayMs          int  `yaml:"delay_ms,omitempty"`
	ContinueOnFailed bool `yaml:"continue_on_failed,omitempty"`
}

// ParseYAML builds a GraphDefinition from a YAML document, resolving each
// node's "type" against bodies. Conditions (node-level and per-successor)
// are compiled once with github.com/expr-lang/expr and cached.
func ParseYAML(data []byte, bodies *NodeBodyRegistry) (GraphDefinition, error) {
	content := strings.TrimSpace(strings.TrimPrefix(string(data), "\xef\xbb\xbf"))
	if content == "" {
		return GraphDefinition{}, &LoadError{Field: "<root>", Message: "empty YAML content"}
	}

	var doc yamlGraph
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return GraphDefinition{}, fmt.Errorf("graph: parse YAML: %w", err)
	}

	if err := validateYAMLGraph(&doc, bodies); err != nil {
		return GraphDefinition{}, err
	}

	cache := newConditionCache(0)
	nodes := make([]NodeConfig, 0, len(doc.Nodes))
	for _, yn := range doc.Nodes {
		nc, err := convertYAMLNode(yn, bodies, cache)
		if err != nil {
			return GraphDefinition{}, err
		}
		nodes = append(nodes, nc)
	}

	return GraphDefinition{
		Name:      doc.Name,
		Context:   doc.Context,
		Nodes:     nodes,
		EntryNode: doc.EntryNode,
		Events:    doc.Events,
	}, nil
}

func validateYAMLGraph(doc *yamlGraph, bodies *NodeBodyRegistry) error {
	if doc.Name == "" {
		return &LoadError{Field: "name", Message: "graph name is required"}
	}
	if len(doc.Nodes) == 0 {
		return &LoadError{Field: "nodes", Message: "at least one node is required"}
	}

	names := make(map[string]bool, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.Name == "" {
			return &LoadError{Field: fmt.Sprintf("nodes[%d].name", i), Message: "node name is required"}
		}
		if names[n.Name] {
			return &LoadError{Field: fmt.Sprintf("nodes[%d].name", i), Message: fmt.Sprintf("duplicate node name: %s", n.Name)}
		}
		names[n.Name] = true

		if n.Type == "" {
			return &LoadError{Field: fmt.Sprintf("nodes[%d].type", i), Message: "node type is required"}
		}
		if bodies != nil && !bodies.Has(n.Type) {
			return &LoadError{Field: fmt.Sprintf("nodes[%d].type", i), Message: fmt.Sprintf("unregistered node type: %s", n.Type)}
		}
	}

	for i, n := range doc.Nodes {
		for j, next := range n.Next {
			if !names[next.Node] {
				return &LoadError{Field: fmt.Sprintf("nodes[%d].next[%d]", i, j), Message: fmt.Sprintf("references unknown node: %s", next.Node)}
			}
		}
	}

	if doc.EntryNode != "" && !names[doc.EntryNode] {
		return &LoadError{Field: "entry_node", Message: fmt.Sprintf("references unknown node: %s", doc.EntryNode)}
	}

	return nil
}

func convertYAMLNode(yn yamlNode, bodies *NodeBodyRegistry, cache *conditionCache) (NodeConfig, error) {
	var body NodeBody
	if bodies != nil {
		body, _ = bodies.get(yn.Type)
	}

	nc := NodeConfig{Name: yn.Name, Execute: body, Events: yn.Events, Priority: yn.Priority}

	if yn.Condition != "" {
		cond, err := compileCondition(cache, yn.Condition)
		if err != nil {
			return NodeConfig{}, &LoadError{Field: fmt.Sprintf("nodes[%s].condition", yn.Name), Message: err.Error()}
		}
		nc.Condition = cond
		nc.ConditionLabel = yn.Condition
	}

	if len(yn.Next) > 0 {
		entries := make([]NextEntry, 0, len(yn.Next))
		for _, next := range yn.Next {
			entry := NextEntry{Node: next.Node}
			if next.Condition != "" {
				cond, err := compileCondition(cache, next.Condition)
				if err != nil {
					return NodeConfig{}, &LoadError{Field: fmt.Sprintf("nodes[%s].next[%s].condition", yn.Name, next.Node), Message: err.Error()}
				}
				entry.Condition = cond
				entry.Label = next.Condition
			}
			entries = append(entries, entry)
		}
		nc.Next = Guarded(entries...)
	}

	if yn.When != nil {
		strategy := WaitStrategy(yn.When.Strategy)
		if strategy == "" {
			strategy = WaitSingle
		}
		nc.When = &WhenGate{
			Events:   yn.When.Events,
			Timeout:  time.Duration(yn.When.TimeoutMs) * time.Millisecond,
			Strategy: strategy,
		}
	}

	if yn.Retry != nil {
		nc.Retry = &RetryPolicy{
			MaxAttempts:      yn.Retry.MaxAttempts,
			Delay:            time.Duration(yn.Retry.DelayMs) * time.Millisecond,
			ContinueOnFailed: yn.Retry.ContinueOnFailed,
		}
	}

	return nc, nil
}

// compileCondition compiles expression once (cached by conditionCache)
// against a dynamic map[string]any environment, the shape every node's
// View.Snapshot produces.
func compileCondition(cache *conditionCache, expression string) (func(*View) bool, error) {
	program, err := cache.compileAndCache(expression, map[string]any{})
	if err != nil {
		return nil, err
	}
	return func(v *View) bool {
		out, err := vm.Run(program, v.Snapshot())
		if err != nil {
			return false
		}
		b, _ := out.(bool)
		return b
	}, nil
}
