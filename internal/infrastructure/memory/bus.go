package memory

import (
	"context"
	"log/slog"
	"sync"

	"orderpipeline/internal/domain/event"
)

// Handler receives envelopes delivered on a topic.
type Handler func(ctx context.Context, env event.Envelope) error

// Bus delivers each published envelope synchronously to the topic's
// subscribers. Delivery failures are logged; they do not fail the publish.
type Bus struct {
	mu        sync.Mutex
	published []event.Envelope
	handlers  map[string][]Handler
	failure   error
	logger    *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[string][]Handler), logger: logger}
}

func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// FailWith makes every following Publish return err. A nil err heals the bus.
func (b *Bus) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failure = err
}

func (b *Bus) Publish(ctx context.Context, topic string, env event.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.failure != nil {
		err := b.failure
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, env)
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			b.logger.Error("delivery failed", "topic", topic, "event_id", env.ID, "error", err)
		}
	}
	return nil
}

// Published returns a copy of every accepted envelope in publish order.
func (b *Bus) Published() []event.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Envelope(nil), b.published...)
}
