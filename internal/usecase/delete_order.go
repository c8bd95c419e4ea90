package usecase

import (
	"context"
	"log/slog"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/projection"
)

type DeleteOrder struct {
	projector *projection.Projector
	logger    *slog.Logger
}

func NewDeleteOrder(projector *projection.Projector, logger *slog.Logger) *DeleteOrder {
	return &DeleteOrder{projector: projector, logger: logger}
}

func (uc *DeleteOrder) Execute(ctx context.Context, id order.ID) error {
	if err := uc.projector.Remove(ctx, id); err != nil {
		return err
	}
	uc.logger.Info("Deleted order", "order_id", id.String())
	return nil
}
