package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderpipeline/internal/application/factories/infrastructure"
	"orderpipeline/internal/config"
	"orderpipeline/internal/consumer"
	"orderpipeline/internal/inbound"
	"orderpipeline/internal/infrastructure/kafka"
	"orderpipeline/internal/logger"
	"orderpipeline/internal/projection"
	"orderpipeline/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("consumer stopped with error", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Metrics Server
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Kafka.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Consumer metrics listening", "port", cfg.Kafka.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	infraFactory := infrastructure.NewFactory(cfg, log)
	defer infraFactory.Close()

	store, err := infraFactory.StateStore(ctx)
	if err != nil {
		return fmt.Errorf("init %s state store: %w", cfg.State.Backend, err)
	}

	projector := projection.NewProjector(store, cfg.Pipeline.Timeout)
	apply := usecase.NewApplyEvent(projector, log)
	adapter := inbound.NewAdapter(cfg.Pipeline.MaxBodyBytes)

	kafkaConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.PubSub.Topic,
		GroupID:     cfg.Kafka.GroupID,
		StartOffset: cfg.Kafka.StartOffset,
	})
	defer kafkaConsumer.Close()

	log.Info("Order Consumer Started", "group_id", cfg.Kafka.GroupID, "topic", cfg.PubSub.Topic, "brokers", cfg.Kafka.Brokers)

	runner := consumer.NewRunner(kafkaConsumer, adapter, apply, consumer.DefaultConfig(), log)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	log.Info("Order Consumer stopping")
	return nil
}
