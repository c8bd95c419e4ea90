package usecase

import (
	"context"
	"log/slog"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/projection"
	"orderpipeline/internal/publisher"
)

type CreateOrder struct {
	projector   *projection.Projector
	publisher   *publisher.Publisher
	topic       string
	publishOnly bool
	logger      *slog.Logger
}

// NewCreateOrder builds the create use case. With publishOnly the order is
// only emitted on topic and the projection is left to the delivery path.
func NewCreateOrder(
	projector *projection.Projector,
	pub *publisher.Publisher,
	topic string,
	publishOnly bool,
	logger *slog.Logger,
) *CreateOrder {
	return &CreateOrder{
		projector:   projector,
		publisher:   pub,
		topic:       topic,
		publishOnly: publishOnly,
		logger:      logger,
	}
}

type CreateOrderParams struct {
	Order   order.Order
	Version string
}

type CreateOrderResult struct {
	Order   order.Order
	Version string
	EventID string
}

func (uc *CreateOrder) Execute(ctx context.Context, params CreateOrderParams) (CreateOrderResult, error) {
	if uc.publishOnly {
		env, err := uc.publisher.Publish(ctx, params.Order, uc.topic)
		if err != nil {
			return CreateOrderResult{}, err
		}
		uc.logger.Info("Published order", "order_id", params.Order.ID.String(), "topic", uc.topic, "event_id", env.ID)
		return CreateOrderResult{Order: params.Order, EventID: env.ID}, nil
	}

	entry, err := uc.projector.Upsert(ctx, params.Order, params.Version)
	if err != nil {
		return CreateOrderResult{}, err
	}
	uc.logger.Info("Order saved", "order_id", params.Order.ID.String(), "key", entry.Key)
	return CreateOrderResult{Order: entry.Order, Version: entry.Version}, nil
}
