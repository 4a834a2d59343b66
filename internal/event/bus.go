package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ EventBus = (*Bus)(nil)

// Bus is a thread-safe topic-keyed pub/sub bus. Handler panics are
// recovered and logged so one misbehaving subscriber cannot take down
// the discovery path.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler // topic -> id -> handler
	all    map[int]Handler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string]map[int]Handler),
		all:    make(map[int]Handler),
	}
}

// Subscribe registers a handler for a single topic. The returned
// function removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// SubscribeAll registers a handler that receives every published event.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers the event synchronously to all topic and wildcard
// subscribers. Publishing with no subscribers is not an error.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	for _, h := range b.handlersFor(event.Topic) {
		b.safeCall(ctx, h, event)
	}
	return nil
}

// PublishAsync delivers the event on a new goroutine and returns
// immediately.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	handlers := b.handlersFor(event.Topic)
	go func() {
		for _, h := range handlers {
			b.safeCall(ctx, h, event)
		}
	}()
}

// handlersFor snapshots matching handlers so delivery happens outside
// the bus lock.
func (b *Bus) handlersFor(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.subs[topic])+len(b.all))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	for _, h := range b.all {
		handlers = append(handlers, h)
	}
	return handlers
}

func (b *Bus) safeCall(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("topic", event.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, event)
}
