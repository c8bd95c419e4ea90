package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderpipeline/internal/api"
	"orderpipeline/internal/application/factories/infrastructure"
	"orderpipeline/internal/config"
	"orderpipeline/internal/domain/event"
	"orderpipeline/internal/inbound"
	"orderpipeline/internal/invocation"
	"orderpipeline/internal/logger"
	"orderpipeline/internal/projection"
	"orderpipeline/internal/publisher"
	"orderpipeline/internal/usecase"
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
		log.Error("server stopped with error", "error", err)
		cancel()
		os.Exit(1)
	}
}

// run serves until ctx is done. Connections owned by the factory are
// closed before it returns.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	infraFactory := infrastructure.NewFactory(cfg, log)
	defer infraFactory.Close()

	store, err := infraFactory.StateStore(ctx)
	if err != nil {
		return fmt.Errorf("init %s state store: %w", cfg.State.Backend, err)
	}

	bus, err := infraFactory.Bus()
	if err != nil {
		return fmt.Errorf("init %s message bus: %w", cfg.PubSub.Backend, err)
	}

	invoker, err := infraFactory.Invoker()
	if err != nil {
		return fmt.Errorf("init %s invoker: %w", cfg.Invoke.Backend, err)
	}

	replay, err := infraFactory.ReplayStore(ctx)
	if err != nil {
		return fmt.Errorf("init %s idempotency store: %w", cfg.Idem.Backend, err)
	}

	// Pipeline
	adapter := inbound.NewAdapter(cfg.Pipeline.MaxBodyBytes)
	projector := projection.NewProjector(store, cfg.Pipeline.Timeout)
	pub := publisher.New(bus, publisher.Config{
		Source:     cfg.App.Name,
		PubsubName: cfg.PubSub.Name,
		Timeout:    cfg.Pipeline.Timeout,
	})
	invokeClient := invocation.NewClient(invoker, invocation.Config{
		TargetAppID: cfg.Invoke.TargetAppID,
		Method:      cfg.Invoke.Method,
		Timeout:     cfg.Pipeline.Timeout,
	})

	// UseCases
	useCases := api.UseCases{
		CreateOrder:  usecase.NewCreateOrder(projector, pub, cfg.PubSub.Topic, cfg.Pipeline.CreateMode == config.CreateModePublish, log),
		GetOrder:     usecase.NewGetOrder(projector, log),
		DeleteOrder:  usecase.NewDeleteOrder(projector, log),
		PublishOrder: usecase.NewPublishOrder(pub, cfg.PubSub.Topic, log),
		InvokeOrder:  usecase.NewInvokeOrder(invokeClient, log),
		ApplyEvent:   usecase.NewApplyEvent(projector, log),
	}

	if cfg.PubSub.Backend == config.BackendMemory {
		subscribeLocally(infraFactory, cfg.PubSub.Topic, adapter, useCases.ApplyEvent)
	}
	if cfg.Invoke.Backend == config.BackendMemory {
		serveLocally(infraFactory, cfg.Invoke.TargetAppID, adapter, useCases.CreateOrder)
	}

	var subs []api.Subscription
	if cfg.PubSub.Backend == config.BackendDapr {
		subs = append(subs, api.Subscription{
			PubsubName: cfg.PubSub.Name,
			Topic:      cfg.PubSub.Topic,
			Route:      api.EventsRoute,
		})
	}

	// REST API Handler
	handlers := api.NewHandlers(adapter, useCases, log)
	apiHandler := api.NewRouter(handlers, replay, subs)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			"port", cfg.HTTP.Port,
			"state_backend", cfg.State.Backend,
			"pubsub_backend", cfg.PubSub.Backend,
			"create_mode", cfg.Pipeline.CreateMode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exiting")
	return nil
}

// subscribeLocally routes the in-process bus back into the delivery path.
func subscribeLocally(f *infrastructure.Factory, topic string, adapter *inbound.Adapter, apply *usecase.ApplyEvent) {
	f.MemoryBus().Subscribe(topic, func(ctx context.Context, env event.Envelope) error {
		body, err := json.Marshal(env)
		if err != nil {
			return err
		}
		o, err := adapter.Receive(event.ContentTypeCloudEvent, body)
		if err != nil {
			return err
		}
		return apply.Execute(ctx, o)
	})
}

// serveLocally answers invocations addressed to appID with this process's
// create use case.
func serveLocally(f *infrastructure.Factory, appID string, adapter *inbound.Adapter, create *usecase.CreateOrder) {
	f.MemoryInvoker().Register(appID, func(ctx context.Context, _ string, payload []byte) ([]byte, error) {
		o, err := adapter.Receive(event.ContentTypeJSON, payload)
		if err != nil {
			return nil, err
		}
		res, err := create.Execute(ctx, usecase.CreateOrderParams{Order: o})
		if err != nil {
			return nil, err
		}
		return json.Marshal(res.Order)
	})
}
