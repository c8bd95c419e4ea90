package dapr

import (
	"context"
	"encoding/json"
	"fmt"

	"orderpipeline/internal/domain/event"

	dapr "github.com/dapr/go-sdk/client"
)

type publishClient interface {
	PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...dapr.PublishEventOption) error
}

// Bus publishes through a sidecar pub/sub component. Envelopes are sent as
// structured cloud events so the sidecar forwards them as built.
type Bus struct {
	client     publishClient
	pubsubName string
}

func NewBus(client publishClient, pubsubName string) *Bus {
	return &Bus{client: client, pubsubName: pubsubName}
}

func (b *Bus) Publish(ctx context.Context, topic string, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", env.ID, err)
	}

	err = b.client.PublishEvent(ctx, b.pubsubName, topic, data,
		dapr.PublishEventWithContentType(event.ContentTypeCloudEvent))
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", b.pubsubName, topic, err)
	}
	return nil
}
