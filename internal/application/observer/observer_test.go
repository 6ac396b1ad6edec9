package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeFilter(t *testing.T) {
	filter := NewEventTypeFilter(EventTypeNodeCompleted, EventTypeNodeError)

	assert.True(t, filter.ShouldNotify(Event{Type: EventTypeNodeCompleted}))
	assert.False(t, filter.ShouldNotify(Event{Type: EventTypeNodeStarted}))

	assert.Nil(t, NewEventTypeFilter())
}

func TestFlowIDFilter(t *testing.T) {
	filter := NewFlowIDFilter("flow-1")
	assert.True(t, filter.ShouldNotify(Event{FlowID: "flow-1"}))
	assert.False(t, filter.ShouldNotify(Event{FlowID: "flow-2"}))
}

func TestNodeNameFilter(t *testing.T) {
	name := "inc"
	other := "dec"
	filter := NewNodeNameFilter("inc")

	assert.True(t, filter.ShouldNotify(Event{NodeName: &name}))
	assert.False(t, filter.ShouldNotify(Event{NodeName: &other}))
	assert.True(t, filter.ShouldNotify(Event{NodeName: nil}), "non-node events always pass")
}

func TestCompoundEventFilter(t *testing.T) {
	name := "inc"
	compound := NewCompoundEventFilter(
		NewEventTypeFilter(EventTypeNodeCompleted),
		NewNodeNameFilter("inc"),
	)

	assert.True(t, compound.ShouldNotify(Event{Type: EventTypeNodeCompleted, NodeName: &name}))
	assert.False(t, compound.ShouldNotify(Event{Type: EventTypeNodeStarted, NodeName: &name}))

	assert.Nil(t, NewCompoundEventFilter(nil, nil))
}

func TestObserverManager_Notify(t *testing.T) {
	mgr := NewObserverManager(WithBufferSize(10))
	mock := NewMockObserver("recorder")
	require.NoError(t, mgr.Register(mock))

	mgr.Notify(context.Background(), Event{Type: EventTypeNodeCompleted})

	require.Eventually(t, func() bool {
		return mock.GetCallCount() == 1
	}, time.Second, 5*time.Millisecond)

	events := mock.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeNodeCompleted, events[0].Type)
}

func TestObserverManager_DuplicateRegistration(t *testing.T) {
	mgr := NewObserverManager()
	require.NoError(t, mgr.Register(NewMockObserver("dup")))
	assert.Error(t, mgr.Register(NewMockObserver("dup")))
}

func TestObserverManager_FilterSuppressesNotify(t *testing.T) {
	mgr := NewObserverManager()
	mock := NewMockObserver("filtered")
	mock.SetFilter(NewEventTypeFilter(EventTypeGraphError))
	require.NoError(t, mgr.Register(mock))

	mgr.Notify(context.Background(), Event{Type: EventTypeNodeStarted})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, mock.GetCallCount())
}

func TestObserverManager_Unregister(t *testing.T) {
	mgr := NewObserverManager()
	require.NoError(t, mgr.Register(NewMockObserver("temp")))
	require.NoError(t, mgr.Unregister("temp"))
	assert.Equal(t, 0, mgr.Count())
	assert.Error(t, mgr.Unregister("temp"))
}
