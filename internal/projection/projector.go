// Package projection maintains the key/value view of orders.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orderpipeline/internal/domain/order"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultTimeout = 5 * time.Second

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_operations_total",
		Help: "Projection operations by operation and result",
	}, []string{"op", "result"})
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "projection_operation_duration_seconds",
		Help:    "Time taken by projection store calls",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"})
)

// Entry is a projected order together with the store's version token.
type Entry struct {
	Key     string      `json:"key"`
	Order   order.Order `json:"value"`
	Version string      `json:"version,omitempty"`
}

// Projector is the only writer of order entries. It holds no state of its
// own; per-key atomicity comes from the store.
type Projector struct {
	store   Store
	timeout time.Duration
}

func NewProjector(store Store, timeout time.Duration) *Projector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Projector{store: store, timeout: timeout}
}

// Upsert writes o under its key, replacing any previous value. Repeating
// the call with the same order leaves the same value behind. A non-empty
// version is handed to the store untouched.
func (p *Projector) Upsert(ctx context.Context, o order.Order, version string) (Entry, error) {
	if err := o.Validate(); err != nil {
		return Entry{}, err
	}

	value, err := json.Marshal(o)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: marshal order: %v", order.ErrValidation, err)
	}

	key := o.Key()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	newVersion, err := p.store.Save(ctx, key, value, version)
	operationDuration.WithLabelValues("upsert").Observe(time.Since(started).Seconds())
	if err != nil {
		return Entry{}, p.fail("upsert", key, err)
	}

	operations.WithLabelValues("upsert", "ok").Inc()
	return Entry{Key: key, Order: o, Version: newVersion}, nil
}

// Fetch returns the entry for id. An absent entry is reported through
// found, never through err.
func (p *Projector) Fetch(ctx context.Context, id order.ID) (Entry, bool, error) {
	if id.IsZero() {
		return Entry{}, false, fmt.Errorf("%w: orderId is required", order.ErrValidation)
	}

	key := order.Key(id)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	value, version, found, err := p.store.Get(ctx, key)
	operationDuration.WithLabelValues("fetch").Observe(time.Since(started).Seconds())
	if err != nil {
		return Entry{}, false, p.fail("fetch", key, err)
	}
	if !found {
		operations.WithLabelValues("fetch", "absent").Inc()
		return Entry{}, false, nil
	}

	var o order.Order
	if err := json.Unmarshal(value, &o); err != nil {
		operations.WithLabelValues("fetch", "error").Inc()
		return Entry{}, false, fmt.Errorf("%w: decode entry %s: %v", order.ErrStorageUnavailable, key, err)
	}

	operations.WithLabelValues("fetch", "ok").Inc()
	return Entry{Key: key, Order: o, Version: version}, true, nil
}

// Remove deletes the entry for id. Removing an absent entry succeeds.
func (p *Projector) Remove(ctx context.Context, id order.ID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: orderId is required", order.ErrValidation)
	}

	key := order.Key(id)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	err := p.store.Delete(ctx, key)
	operationDuration.WithLabelValues("remove").Observe(time.Since(started).Seconds())
	if err != nil {
		return p.fail("remove", key, err)
	}

	operations.WithLabelValues("remove", "ok").Inc()
	return nil
}

func (p *Projector) fail(op, key string, err error) error {
	if errors.Is(err, order.ErrVersionConflict) {
		operations.WithLabelValues(op, "conflict").Inc()
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	operations.WithLabelValues(op, "error").Inc()
	return fmt.Errorf("%s %s: %w: %w", op, key, order.ErrStorageUnavailable, err)
}
