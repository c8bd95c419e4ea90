// Package consumer applies orders delivered through Kafka to the projection.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/inbound"
	"orderpipeline/internal/infrastructure/kafka"
	"orderpipeline/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	kafkago "github.com/segmentio/kafka-go"
)

var (
	messagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_total",
		Help: "Delivered messages by outcome",
	}, []string{"result"})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to apply a delivered order",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Source is the subset of a Kafka reader the runner needs.
type Source interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type Config struct {
	MaxRetries int
	// Backoff returns the wait before the given retry attempt (1-based).
	Backoff func(attempt int) time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

type Runner struct {
	source  Source
	adapter *inbound.Adapter
	apply   *usecase.ApplyEvent
	cfg     Config
	logger  *slog.Logger
}

func NewRunner(source Source, adapter *inbound.Adapter, apply *usecase.ApplyEvent, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Runner{
		source:  source,
		adapter: adapter,
		apply:   apply,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run fetches and applies messages until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		msg, err := r.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("failed to fetch message", "error", err)
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		r.Handle(ctx, msg)
	}
}

// Handle applies one message and commits it. Malformed messages are
// committed without being applied. Storage faults are retried with backoff
// and the message is dropped once retries run out.
func (r *Runner) Handle(ctx context.Context, msg kafkago.Message) {
	o, err := r.adapter.Receive(kafka.ContentType(msg), msg.Value)
	if err != nil {
		r.logger.Error("dropping malformed message", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		messagesHandled.WithLabelValues("malformed").Inc()
		r.commit(ctx, msg)
		return
	}

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.cfg.Backoff(attempt)
			r.logger.Info("Retry attempt", "attempt", attempt, "max", r.cfg.MaxRetries, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
		}

		started := time.Now()
		err = r.apply.Execute(ctx, o)
		if err == nil {
			processingDuration.Observe(time.Since(started).Seconds())
			messagesHandled.WithLabelValues("applied").Inc()
			r.commit(ctx, msg)
			return
		}
		if errors.Is(err, order.ErrValidation) {
			break
		}

		r.logger.Error("Processing failed", "order_id", o.ID.String(), "attempt", attempt, "error", err)
	}

	r.logger.Error("DLQ: Dropping message after retries", "order_id", o.ID.String(), "retries", r.cfg.MaxRetries, "error", err)
	messagesHandled.WithLabelValues("dropped").Inc()
	r.commit(ctx, msg)
}

func (r *Runner) commit(ctx context.Context, msg kafkago.Message) {
	if err := r.source.CommitMessages(ctx, msg); err != nil {
		r.logger.Error("failed to commit kafka message", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
