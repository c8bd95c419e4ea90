package usecase

import (
	"context"
	"log/slog"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/invocation"
)

type InvokeOrder struct {
	client *invocation.Client
	logger *slog.Logger
}

func NewInvokeOrder(client *invocation.Client, logger *slog.Logger) *InvokeOrder {
	return &InvokeOrder{client: client, logger: logger}
}

func (uc *InvokeOrder) Execute(ctx context.Context, o order.Order) ([]byte, error) {
	resp, err := uc.client.Invoke(ctx, o)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("Invocation successful", "order_id", o.ID.String())
	return resp, nil
}
