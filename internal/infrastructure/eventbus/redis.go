// Package eventbus provides a Redis pub/sub-backed implementation of
// pkg/graph.EventEmitter, so Emit/On calls on one Flow instance reach
// every other process subscribed to the same channels.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smilemakc/flowgraph/internal/config"
	"github.com/smilemakc/flowgraph/internal/infrastructure/logger"
)

const channelPrefix = "flowgraph:events:"

// message is the wire shape published on a channel.
type message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RedisBus is a distributed EventEmitter: Emit publishes to Redis, and
// every RedisBus subscribed to the same channel (including the one that
// published) invokes its locally registered handlers for that event
// type. It owns one long-lived pub/sub connection per subscribed channel.
type RedisBus struct {
	client *redis.Client
	log    *logger.Logger

	mu       sync.RWMutex
	pubsub   map[string]*redis.PubSub
	handlers map[string][]func(payload any)

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a RedisBus, verifying connectivity with a short-lived
// ping before returning.
func New(cfg config.EventBusConfig) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("eventbus: connect to redis: %w", err)
	}

	return &RedisBus{
		client:   client,
		log:      logger.Default(),
		pubsub:   make(map[string]*redis.PubSub),
		handlers: make(map[string][]func(payload any)),
		done:     make(chan struct{}),
	}, nil
}

// NewWithClient wraps an already-constructed client, so tests can point a
// RedisBus at a miniredis instance without going through URL parsing.
func NewWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{
		client:   client,
		log:      logger.Default(),
		pubsub:   make(map[string]*redis.PubSub),
		handlers: make(map[string][]func(payload any)),
		done:     make(chan struct{}),
	}
}

func channelFor(eventType string) string { return channelPrefix + eventType }

// Emit publishes eventType to Redis; local and remote subscribers are
// notified identically, through the same pub/sub round trip.
func (b *RedisBus) Emit(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("eventbus: marshal payload failed", "event", eventType, "error", err)
		return
	}
	msg := message{Type: eventType, Payload: raw, Timestamp: time.Now()}
	body, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("eventbus: marshal message failed", "event", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, channelFor(eventType), body).Err(); err != nil {
		b.log.Error("eventbus: publish failed", "event", eventType, "error", err)
	}
}

// On registers handler for eventType, subscribing to its Redis channel on
// first use.
func (b *RedisBus) On(eventType string, handler func(payload any)) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	_, subscribed := b.pubsub[eventType]
	b.mu.Unlock()

	if !subscribed {
		b.subscribe(eventType)
	}
}

// Off removes a single handler previously registered with On. Handlers
// are compared by pointer identity (Go has no function equality), so
// callers that need Off must keep a reference to the func they passed
// to On.
func (b *RedisBus) Off(eventType string, handler func(payload any)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventType]
	for i := range list {
		if samePointer(list[i], handler) {
			b.handlers[eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners drops every handler registered for eventType, or for
// every event type when eventType is empty.
func (b *RedisBus) RemoveAllListeners(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if eventType == "" {
		b.handlers = make(map[string][]func(payload any))
		return
	}
	delete(b.handlers, eventType)
}

// RawListeners returns the handlers currently registered for eventType.
func (b *RedisBus) RawListeners(eventType string) []func(payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]func(payload any){}, b.handlers[eventType]...)
}

// Close stops every subscription and closes the Redis client.
func (b *RedisBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	subs := make([]*redis.PubSub, 0, len(b.pubsub))
	for _, ps := range b.pubsub {
		subs = append(subs, ps)
	}
	b.pubsub = make(map[string]*redis.PubSub)
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	return b.client.Close()
}

func (b *RedisBus) subscribe(eventType string) {
	ctx := context.Background()
	ps := b.client.Subscribe(ctx, channelFor(eventType))

	b.mu.Lock()
	b.pubsub[eventType] = ps
	b.mu.Unlock()

	go b.listen(eventType, ps)
}

func (b *RedisBus) listen(eventType string, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-b.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			b.deliver(eventType, raw.Payload)
		}
	}
}

func (b *RedisBus) deliver(eventType, body string) {
	var msg message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		b.log.Error("eventbus: unmarshal message failed", "event", eventType, "error", err)
		return
	}

	var payload any
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			b.log.Error("eventbus: unmarshal payload failed", "event", eventType, "error", err)
			return
		}
	}

	b.mu.RLock()
	handlers := append([]func(payload any){}, b.handlers[eventType]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}

// samePointer compares two handlers by the address of the function they
// wrap; Go functions are not comparable with ==, so Off needs this to
// find which registration to drop.
func samePointer(a, b func(payload any)) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
