package visualization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smilemakc/flowgraph/pkg/graph"
)

// MermaidRenderer renders a graph definition as a Mermaid flowchart.
type MermaidRenderer struct{}

// NewMermaidRenderer creates a new Mermaid renderer.
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Format returns the format identifier.
func (r *MermaidRenderer) Format() string {
	return "mermaid"
}

// Render converts def into Mermaid flowchart syntax: one node per
// NodeConfig, edges for every statically known successor (guarded
// successors carry humanized condition text), a note for nodes whose
// Next is Computed (no static edges can be drawn for those), and dashed
// pseudo-nodes for event triggers.
func (r *MermaidRenderer) Render(def *graph.GraphDefinition, opts *RenderOptions) (string, error) {
	if def == nil {
		return "", fmt.Errorf("graph definition is nil")
	}
	if opts == nil {
		opts = DefaultRenderOptions()
	}

	var sb strings.Builder

	if len(opts.ThemeVariables) > 0 {
		sb.WriteString("---\n")
		sb.WriteString("config:\n")
		sb.WriteString("  theme: base\n")
		sb.WriteString("  themeVariables:\n")
		for key, value := range opts.ThemeVariables {
			sb.WriteString(fmt.Sprintf("    %s: \"%s\"\n", key, value))
		}
		sb.WriteString("---\n")
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TB"
	}
	sb.WriteString("flowchart ")
	sb.WriteString(direction)
	sb.WriteString("\n")

	for _, node := range def.Nodes {
		sb.WriteString("    ")
		sb.WriteString(r.renderNode(node, opts))
		sb.WriteString("\n")
	}

	sb.WriteString(r.renderEdges(def, opts))

	if opts.ShowEvents {
		pseudo := r.renderEventPseudoNodes(def)
		if pseudo != "" {
			sb.WriteString("\n")
			sb.WriteString(pseudo)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(r.renderStyles(def))

	return sb.String(), nil
}

// renderNode picks a shape by what gates the node: a diamond for a
// condition gate, a stadium for an event-wait gate, a rectangle
// otherwise.
func (r *MermaidRenderer) renderNode(node graph.NodeConfig, opts *RenderOptions) string {
	id := mermaidID(node.Name)
	label := r.buildNodeLabel(node, opts)

	switch {
	case node.When != nil:
		return fmt.Sprintf(`%s(["%s"])`, id, label)
	case node.Condition != nil:
		return fmt.Sprintf(`%s{"%s"}`, id, label)
	default:
		return fmt.Sprintf(`%s["%s"]`, id, label)
	}
}

func (r *MermaidRenderer) buildNodeLabel(node graph.NodeConfig, opts *RenderOptions) string {
	label := node.Name

	if node.Retry != nil && node.Retry.MaxAttempts > 1 {
		label += fmt.Sprintf("<br/>retry x%d", node.Retry.MaxAttempts)
	}
	if opts.ShowConditions && node.Condition != nil && node.ConditionLabel != "" {
		label += "<br/>if " + escapeHTML(node.ConditionLabel)
	}
	if node.When != nil {
		label += fmt.Sprintf("<br/>when %s(%s)", node.When.Strategy, strings.Join(node.When.Events, ","))
	}

	return strings.ReplaceAll(label, `"`, "&quot;")
}

// renderEdges draws every statically known successor. A node whose Next
// is Computed gets a note instead: its edges cannot be known without
// running the graph.
func (r *MermaidRenderer) renderEdges(def *graph.GraphDefinition, opts *RenderOptions) string {
	var sb strings.Builder
	for _, node := range def.Nodes {
		entries, static := node.Next.StaticEntries()
		if !static {
			sb.WriteString(fmt.Sprintf("    %%%% %s: computed successors, resolved at traversal time\n", node.Name))
			continue
		}
		for _, entry := range entries {
			from := mermaidID(node.Name)
			to := mermaidID(entry.Node)
			if opts.ShowConditions && entry.Condition != nil {
				label := entry.Label
				if label == "" {
					label = "guarded"
				}
				sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", from, escapeHTML(label), to))
			} else {
				sb.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
			}
		}
	}
	return sb.String()
}

// renderEventPseudoNodes adds a dashed pseudo-node for every distinct
// event name that triggers a node (NodeConfig.Events) or the whole graph
// (GraphDefinition.Events).
func (r *MermaidRenderer) renderEventPseudoNodes(def *graph.GraphDefinition) string {
	type trigger struct {
		event string
		to    string
	}
	var triggers []trigger
	seen := make(map[string]bool)

	for _, node := range def.Nodes {
		for _, evt := range node.Events {
			triggers = append(triggers, trigger{event: evt, to: node.Name})
			seen[evt] = true
		}
	}
	for _, evt := range def.Events {
		if def.EntryNode == "" {
			continue
		}
		triggers = append(triggers, trigger{event: evt, to: def.EntryNode})
		seen[evt] = true
	}
	if len(triggers) == 0 {
		return ""
	}

	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].event != triggers[j].event {
			return triggers[i].event < triggers[j].event
		}
		return triggers[i].to < triggers[j].to
	})

	var sb strings.Builder
	declared := make(map[string]bool)
	for _, t := range triggers {
		pseudoID := "evt_" + mermaidID(t.event)
		if !declared[pseudoID] {
			sb.WriteString(fmt.Sprintf("    %s([\"event: %s\"])\n", pseudoID, escapeHTML(t.event)))
			declared[pseudoID] = true
		}
		sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", pseudoID, mermaidID(t.to)))
	}
	return sb.String()
}

func (r *MermaidRenderer) renderStyles(def *graph.GraphDefinition) string {
	var sb strings.Builder
	sb.WriteString("    %% node styles\n")
	sb.WriteString("    classDef conditionNode fill:#DFF7E3,stroke:#34A853,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef waitNode fill:#E8D9FF,stroke:#8E57FF,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef eventNode fill:#FFE5C2,stroke:#F7931A,stroke-width:2px,color:#000,stroke-dasharray: 5 5\n")

	var conditionIDs, waitIDs []string
	for _, node := range def.Nodes {
		switch {
		case node.When != nil:
			waitIDs = append(waitIDs, mermaidID(node.Name))
		case node.Condition != nil:
			conditionIDs = append(conditionIDs, mermaidID(node.Name))
		}
	}
	writeClass(&sb, "conditionNode", conditionIDs)
	writeClass(&sb, "waitNode", waitIDs)

	eventIDs := make(map[string]bool)
	for _, node := range def.Nodes {
		for _, evt := range node.Events {
			eventIDs["evt_"+mermaidID(evt)] = true
		}
	}
	for _, evt := range def.Events {
		eventIDs["evt_"+mermaidID(evt)] = true
	}
	var ids []string
	for id := range eventIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	writeClass(&sb, "eventNode", ids)

	return sb.String()
}

func writeClass(sb *strings.Builder, className string, ids []string) {
	if len(ids) == 0 {
		return
	}
	sb.WriteString("    class ")
	sb.WriteString(strings.Join(ids, ","))
	sb.WriteString(" ")
	sb.WriteString(className)
	sb.WriteString("\n")
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, `"`, "&quot;")
	return text
}

// mermaidID sanitizes a node or event name into a valid Mermaid
// identifier: letters, digits, and underscores only.
func mermaidID(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	id := sb.String()
	if id == "" {
		return "_"
	}
	if id[0] >= '0' && id[0] <= '9' {
		return "n_" + id
	}
	return id
}
