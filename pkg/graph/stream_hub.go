package graph

import (
	"context"
	"sync"

	"github.com/smilemakc/flowgraph/internal/application/observer"
)

// streamHub is the single observer.Observer a Flow registers with its
// ObserverManager; it fans every notified event out to whatever Observer
// streams are currently subscribed over in-process channels.
type streamHub struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]chan observer.Event
}

func newStreamHub() *streamHub {
	return &streamHub{subscribers: make(map[int]chan observer.Event)}
}

func (h *streamHub) Name() string                 { return "graph-reactive-hub" }
func (h *streamHub) Filter() observer.EventFilter { return nil }
func (h *streamHub) OnEvent(_ context.Context, evt observer.Event) error {
	h.mu.Lock()
	chans := make([]chan observer.Event, 0, len(h.subscribers))
	for _, ch := range h.subscribers {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
			// Subscriber is slower than the broadcast; drop rather than
			// block the whole Flow on a lagging observer.
		}
	}
	return nil
}

func (h *streamHub) subscribe() (int, chan observer.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan observer.Event, 64)
	h.subscribers[id] = ch
	return id, ch
}

func (h *streamHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}
