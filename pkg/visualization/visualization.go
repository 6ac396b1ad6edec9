// Package visualization derives a flowchart rendering from a static graph
// definition. It carries no runtime behavior: it never executes a node or
// reads live context, only the registry shape a *graph.Flow was built
// from.
package visualization

import (
	"github.com/smilemakc/flowgraph/pkg/graph"
)

// Renderer is the interface for rendering a graph definition in a given
// target format.
type Renderer interface {
	// Render converts def into the target format.
	Render(def *graph.GraphDefinition, opts *RenderOptions) (string, error)

	// Format returns the format identifier (e.g., "mermaid").
	Format() string
}

// RenderOptions configures how a graph definition is rendered.
type RenderOptions struct {
	// ShowConditions controls whether humanized guard text is shown on
	// edges and condition-gated nodes.
	ShowConditions bool

	// ShowEvents controls whether event-trigger pseudo-nodes are rendered
	// for nodes with NodeConfig.Events and for GraphDefinition.Events.
	ShowEvents bool

	// Direction sets the diagram flow direction. Valid values: "TB"
	// (top-bottom), "LR" (left-right), "RL" (right-left), "BT" (bottom-top).
	Direction string

	// ThemeVariables allows customizing the Mermaid theme.
	ThemeVariables map[string]string
}

// DefaultRenderOptions returns the default rendering options.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		ShowConditions: true,
		ShowEvents:     true,
		Direction:      "TB",
	}
}
