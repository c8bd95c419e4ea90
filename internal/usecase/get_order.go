package usecase

import (
	"context"
	"log/slog"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/projection"
)

type GetOrder struct {
	projector *projection.Projector
	logger    *slog.Logger
}

func NewGetOrder(projector *projection.Projector, logger *slog.Logger) *GetOrder {
	return &GetOrder{projector: projector, logger: logger}
}

// Execute returns found=false, without error, for an order never saved.
func (uc *GetOrder) Execute(ctx context.Context, id order.ID) (projection.Entry, bool, error) {
	entry, found, err := uc.projector.Fetch(ctx, id)
	if err != nil {
		return projection.Entry{}, false, err
	}
	uc.logger.Debug("Retrieved order", "order_id", id.String(), "found", found)
	return entry, found, nil
}
