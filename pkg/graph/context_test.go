package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterCtx struct {
	Value float64 `json:"value" validate:"gte=0"`
}

func counterSchema() Schema {
	return NewStructSchema(func() any { return &counterCtx{} })
}

func TestNewContext_ParsesInitial(t *testing.T) {
	ctx, err := NewContext(counterSchema(), map[string]any{"value": 0})
	require.NoError(t, err)

	v, ok := ctx.Get("value")
	require.True(t, ok)
	assert.EqualValues(t, 0, v)
}

func TestNewContext_RejectsInvalidInitial(t *testing.T) {
	_, err := NewContext(counterSchema(), map[string]any{"value": -1})
	require.Error(t, err)
	var verr *ContextValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestNewContext_NilSchemaAcceptsAnything(t *testing.T) {
	ctx, err := NewContext(nil, map[string]any{"anything": "goes"})
	require.NoError(t, err)
	v, ok := ctx.Get("anything")
	require.True(t, ok)
	assert.Equal(t, "goes", v)
}

func TestView_SetIsNoOpWhenValueUnchanged(t *testing.T) {
	ctx, err := NewContext(NoopSchema{}, map[string]any{"v": 1})
	require.NoError(t, err)

	var calls int
	rec := recordingEmitter(func(string, string, any, any, map[string]any) { calls++ })
	view := newView(ctx, "n", rec)

	view.Set("v", 1) // same value, no-op
	assert.Equal(t, 0, calls)

	view.Set("v", 2) // changed, emits once
	assert.Equal(t, 1, calls)

	view.Set("v", 2) // unchanged again, no-op
	assert.Equal(t, 1, calls)
}

func TestView_DedupsBackToBackIdenticalChange(t *testing.T) {
	// Assigning the same (old, new) pair twice in a row
	// through the same View emits only once.
	ctx, err := NewContext(NoopSchema{}, map[string]any{"v": 1})
	require.NoError(t, err)

	var calls int
	rec := recordingEmitter(func(string, string, any, any, map[string]any) { calls++ })
	view := newView(ctx, "n", rec)

	view.Set("v", 2)
	view.Set("v", 1) // back to old value: this is itself a change from 2->1
	view.Set("v", 1) // same as current value: no-op, not even a dedup hit
	assert.Equal(t, 2, calls)

	ctx.Set("v", 2)  // moved back outside the View, no event
	view.Set("v", 1) // same (2 -> 1) pair as the last emission: suppressed
	assert.Equal(t, 2, calls)
}

func TestContext_Snapshot_OrderedByFirstIntroduction(t *testing.T) {
	ctx, err := NewContext(NoopSchema{}, map[string]any{})
	require.NoError(t, err)
	ctx.Set("b", 1)
	ctx.Set("a", 2)
	ctx.Set("b", 3) // re-set, should not move position

	snap := ctx.Snapshot()
	assert.Equal(t, map[string]any{"b": 3, "a": 2}, snap)
	assert.Equal(t, []string{"b", "a"}, ctx.keys)
}

type recordingEmitter func(nodeName, property string, oldValue, newValue any, snapshot map[string]any)

func (r recordingEmitter) emitStateChange(nodeName, property string, oldValue, newValue any, snapshot map[string]any) {
	r(nodeName, property, oldValue, newValue, snapshot)
}
