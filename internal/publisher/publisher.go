// Package publisher wraps orders in envelopes and hands them to the bus.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderpipeline/internal/domain/event"
	"orderpipeline/internal/domain/order"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultTimeout = 5 * time.Second

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_events_published_total",
		Help: "The total number of envelopes accepted by the bus",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
)

// Bus is the pub/sub collaborator. Publish returns only after the bus has
// accepted or rejected the envelope.
type Bus interface {
	Publish(ctx context.Context, topic string, env event.Envelope) error
}

type Config struct {
	Source     string
	PubsubName string
	Timeout    time.Duration
}

type Publisher struct {
	bus Bus
	cfg Config
	now func() time.Time
}

func New(bus Bus, cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Publisher{bus: bus, cfg: cfg, now: time.Now}
}

// Publish makes exactly one attempt to put o on topic. A bus failure or a
// timeout comes back as order.ErrPublish.
func (p *Publisher) Publish(ctx context.Context, o order.Order, topic string) (event.Envelope, error) {
	if err := o.Validate(); err != nil {
		return event.Envelope{}, err
	}
	if topic == "" {
		return event.Envelope{}, fmt.Errorf("%w: topic is required", order.ErrValidation)
	}

	env, err := p.envelope(o, topic)
	if err != nil {
		return event.Envelope{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.bus.Publish(ctx, topic, env); err != nil {
		publishErrors.Inc()
		return event.Envelope{}, fmt.Errorf("publish order %s to %s: %w: %w", o.ID, topic, order.ErrPublish, err)
	}

	eventsPublished.Inc()
	return env, nil
}

func (p *Publisher) envelope(o order.Order, topic string) (event.Envelope, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("%w: marshal order: %v", order.ErrValidation, err)
	}

	return event.Envelope{
		ID:              uuid.New().String(),
		Source:          p.cfg.Source,
		Type:            event.TypeOrderPublished,
		Subject:         o.Key(),
		SpecVersion:     event.SpecVersion,
		DataContentType: event.ContentTypeJSON,
		Topic:           topic,
		PubsubName:      p.cfg.PubsubName,
		Time:            p.now().UTC(),
		Data:            data,
	}, nil
}
