package eventbus

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smilemakc/flowgraph/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Success(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus, err := New(config.EventBusConfig{URL: "redis://" + s.Addr(), PoolSize: 5})
	require.NoError(t, err)
	require.NotNil(t, bus)
	defer bus.Close()
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(config.EventBusConfig{URL: "not-a-url://???"})
	assert.Error(t, err)
}

func TestNew_ConnectionRefused(t *testing.T) {
	_, err := New(config.EventBusConfig{URL: "redis://127.0.0.1:1"})
	assert.Error(t, err)
}

func newTestBus(t *testing.T, s *miniredis.Miniredis) *RedisBus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return NewWithClient(client)
}

func TestRedisBus_EmitDeliversToLocalHandler(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus := newTestBus(t, s)
	defer bus.Close()

	received := make(chan any, 1)
	bus.On("orderPlaced", func(payload any) {
		received <- payload
	})

	time.Sleep(50 * time.Millisecond) // allow the subscribe goroutine to attach

	bus.Emit("orderPlaced", map[string]any{"id": "x"})

	select {
	case payload := <-received:
		m, ok := payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "x", m["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestRedisBus_EmitReachesMultipleHandlers(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus := newTestBus(t, s)
	defer bus.Close()

	var calls1, calls2 int
	done := make(chan struct{}, 2)
	bus.On("tick", func(any) { calls1++; done <- struct{}{} })
	bus.On("tick", func(any) { calls2++; done <- struct{}{} })

	time.Sleep(50 * time.Millisecond)
	bus.Emit("tick", nil)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handlers")
		}
	}
	assert.Equal(t, 1, calls1)
	assert.Equal(t, 1, calls2)
}

func TestRedisBus_Off(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus := newTestBus(t, s)
	defer bus.Close()

	handler := func(any) {}
	bus.On("stock", handler)
	assert.Len(t, bus.RawListeners("stock"), 1)

	bus.Off("stock", handler)
	assert.Len(t, bus.RawListeners("stock"), 0)
}

func TestRedisBus_RemoveAllListeners(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus := newTestBus(t, s)
	defer bus.Close()

	bus.On("a", func(any) {})
	bus.On("b", func(any) {})

	bus.RemoveAllListeners("a")
	assert.Len(t, bus.RawListeners("a"), 0)
	assert.Len(t, bus.RawListeners("b"), 1)

	bus.RemoveAllListeners("")
	assert.Len(t, bus.RawListeners("b"), 0)
}

func TestRedisBus_CloseStopsDelivery(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus := newTestBus(t, s)

	var calls int
	bus.On("shutdown-test", func(any) { calls++ })
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Close())

	// Emit after Close should not panic even though the client is shut down;
	// errors are logged, not propagated (Emit has no return value).
	assert.NotPanics(t, func() { bus.Emit("shutdown-test", nil) })
	assert.Equal(t, 0, calls)
}
