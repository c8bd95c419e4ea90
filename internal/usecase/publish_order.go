package usecase

import (
	"context"
	"log/slog"

	"orderpipeline/internal/domain/event"
	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/publisher"
)

type PublishOrder struct {
	publisher *publisher.Publisher
	topic     string
	logger    *slog.Logger
}

func NewPublishOrder(pub *publisher.Publisher, topic string, logger *slog.Logger) *PublishOrder {
	return &PublishOrder{publisher: pub, topic: topic, logger: logger}
}

func (uc *PublishOrder) Execute(ctx context.Context, o order.Order) (event.Envelope, error) {
	env, err := uc.publisher.Publish(ctx, o, uc.topic)
	if err != nil {
		return event.Envelope{}, err
	}
	uc.logger.Info("Published data", "order_id", o.ID.String(), "topic", uc.topic, "event_id", env.ID)
	return env, nil
}
