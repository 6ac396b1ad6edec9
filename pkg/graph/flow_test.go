package graph

import (
	"errors"
	"testing"

	"github.com/smilemakc/flowgraph/internal/application/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlow_AddNode_RemoveNode_GetNodes(t *testing.T) {
	f, err := New(GraphDefinition{Name: "reg", Context: map[string]any{}})
	require.NoError(t, err)

	require.NoError(t, f.AddNode(NodeConfig{Name: "a"}))
	require.NoError(t, f.AddNode(NodeConfig{Name: "b"}))
	assert.Equal(t, []string{"a", "b"}, f.GetNodes())

	assert.Error(t, f.AddNode(NodeConfig{Name: "a"})) // duplicate

	f.RemoveNode("a")
	assert.Equal(t, []string{"b"}, f.GetNodes())

	f.RemoveNode("does-not-exist") // no-op
	assert.Equal(t, []string{"b"}, f.GetNodes())
}

// Emit dispatches every node declaring the event, sequentially and in
// registration order, with triggeredByEvent=true so the dispatch never
// cascades into the node's own Next successors.
func TestFlow_Emit_DispatchesDeclaredListeners(t *testing.T) {
	var cascaded bool
	f, err := New(GraphDefinition{
		Name:    "emit",
		Context: map[string]any{"count": 0},
		Nodes: []NodeConfig{
			{
				Name:   "onOrder",
				Events: []string{"orderPlaced"},
				Next:   Seq("shouldNotRun"),
				Execute: func(ctx *View, call *CallBag) error {
					return nil
				},
			},
			{
				Name:    "shouldNotRun",
				Execute: func(*View, *CallBag) error { cascaded = true; return nil },
			},
		},
	})
	require.NoError(t, err)
	rec := attachRecorder(t, f)

	f.Emit("orderPlaced", map[string]any{"id": "o1"})

	assert.False(t, cascaded)

	var sawStarted, sawCompleted bool
	for _, e := range rec.GetEvents() {
		if e.NodeName != nil && *e.NodeName == "onOrder" {
			switch e.Type {
			case observer.EventTypeNodeStarted:
				sawStarted = true
			case observer.EventTypeNodeCompleted:
				sawCompleted = true
			}
		}
	}
	assert.True(t, sawStarted)
	assert.True(t, sawCompleted)
}

// Load replaces the registry, context, and declared listeners
// wholesale; a previously registered node is gone and the new graph's
// entry point runs against the new initial context.
func TestScenario_LoadReplacesGraph(t *testing.T) {
	f, err := New(GraphDefinition{
		Name:      "before",
		Context:   map[string]any{"value": 0},
		EntryNode: "old",
		Nodes: []NodeConfig{
			{Name: "old", Execute: func(*View, *CallBag) error { return nil }},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.Load(GraphDefinition{
		Name:      "after",
		Context:   map[string]any{"value": 100.0},
		EntryNode: "new",
		Nodes: []NodeConfig{
			{
				Name: "new",
				Execute: func(ctx *View, call *CallBag) error {
					ctx.Set("value", ctx.MustGet("value").(float64)+1)
					return nil
				},
			},
		},
	}))

	assert.Equal(t, []string{"new"}, f.GetNodes())

	final, err := f.Execute("new", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 101, final["value"])

	_, err = f.Execute("old", nil, nil)
	require.Error(t, err)
	var nerr *NodeNotFoundError
	assert.ErrorAs(t, err, &nerr)
}

func TestFlow_OnError_ReceivesFailureAndSnapshot(t *testing.T) {
	var gotErr error
	var gotCtx map[string]any
	f, err := New(GraphDefinition{
		Name:    "onerror",
		Context: map[string]any{"step": "start"},
		OnError: func(err error, ctx map[string]any) {
			gotErr = err
			gotCtx = ctx
		},
		Nodes: []NodeConfig{
			{
				Name: "fails",
				Execute: func(ctx *View, call *CallBag) error {
					ctx.Set("step", "attempted")
					return errors.New("boom")
				},
			},
		},
	})
	require.NoError(t, err)

	_, err = f.Execute("fails", nil, nil)
	require.Error(t, err)
	require.Error(t, gotErr)
	assert.Equal(t, "attempted", gotCtx["step"])
}

func TestFlow_Logs_CapturesLifecycleAndRespectsVerbosity(t *testing.T) {
	f, err := New(GraphDefinition{
		Name:    "logs",
		Context: map[string]any{},
		Nodes: []NodeConfig{
			{Name: "n", Execute: func(*View, *CallBag) error { return nil }},
		},
	})
	require.NoError(t, err)

	_, err = f.Execute("n", nil, nil)
	require.NoError(t, err)

	logs := f.GetLogs()
	assert.NotEmpty(t, logs)

	f.ClearLogs()
	assert.Empty(t, f.GetLogs())

	f.SetVerbose(true)
	_, err = f.Execute("n", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, f.GetLogs())
}

func TestFlow_GetContext_ReflectsExecutedWrites(t *testing.T) {
	f, err := New(GraphDefinition{
		Name:    "ctx",
		Context: map[string]any{"value": 0},
		Nodes: []NodeConfig{
			{
				Name: "n",
				Execute: func(ctx *View, call *CallBag) error {
					ctx.Set("value", 9)
					return nil
				},
			},
		},
	})
	require.NoError(t, err)

	_, err = f.Execute("n", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 9, f.GetContext()["value"])
}
