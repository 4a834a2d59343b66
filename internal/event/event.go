// Package event provides the in-process publish/subscribe bus that
// carries device lifecycle notifications between components.
package event

import (
	"context"
	"time"
)

// Event is a single message delivered through the bus.
type Event struct {
	// Topic routes the event to subscribers, e.g. "discovery.device.online".
	Topic string
	// Source names the emitting component.
	Source string
	// Timestamp is when the event was published.
	Timestamp time.Time
	// Payload carries the topic-specific body.
	Payload any
}

// Handler processes a delivered event. Handlers must not block for long;
// use PublishAsync on the producing side for slow consumers.
type Handler func(ctx context.Context, e Event)

// EventBus is the consumer-facing surface of the bus. The concrete Bus
// implements it; tests substitute a recording mock.
type EventBus interface {
	// Publish delivers the event synchronously to all matching subscribers.
	Publish(ctx context.Context, event Event) error
	// PublishAsync delivers the event on a separate goroutine.
	PublishAsync(ctx context.Context, event Event)
	// Subscribe registers a handler for one topic and returns an
	// unsubscribe function.
	Subscribe(topic string, handler Handler) func()
	// SubscribeAll registers a handler for every topic.
	SubscribeAll(handler Handler) func()
}
