package usecase

import (
	"context"
	"log/slog"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/projection"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ordersApplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "delivery_orders_applied_total",
	Help: "The total number of delivered orders applied to the projection",
})

// ApplyEvent projects an order that arrived through the bus. Redelivery of
// the same order leaves the projection unchanged.
type ApplyEvent struct {
	projector *projection.Projector
	logger    *slog.Logger
}

func NewApplyEvent(projector *projection.Projector, logger *slog.Logger) *ApplyEvent {
	return &ApplyEvent{projector: projector, logger: logger}
}

func (uc *ApplyEvent) Execute(ctx context.Context, o order.Order) error {
	entry, err := uc.projector.Upsert(ctx, o, "")
	if err != nil {
		return err
	}
	ordersApplied.Inc()
	uc.logger.Info("Order received", "order_id", o.ID.String(), "key", entry.Key)
	return nil
}
