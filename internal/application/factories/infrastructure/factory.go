package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orderpipeline/internal/api/middleware"
	"orderpipeline/internal/config"
	daprInfra "orderpipeline/internal/infrastructure/dapr"
	"orderpipeline/internal/infrastructure/kafka"
	"orderpipeline/internal/infrastructure/memory"
	"orderpipeline/internal/infrastructure/postgres"
	"orderpipeline/internal/infrastructure/redis"
	"orderpipeline/internal/invocation"
	"orderpipeline/internal/projection"
	"orderpipeline/internal/publisher"

	dapr "github.com/dapr/go-sdk/client"
	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

// Factory builds the collaborators selected in config and owns their
// connections.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	pgPool     *pgxpool.Pool
	redisCli   *go_redis.Client
	daprCli    dapr.Client
	kafkaProd  *kafka.Producer
	memStore   *memory.Store
	memBus     *memory.Bus
	memInvoker *memory.Invoker
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
			SSLMode:  f.cfg.Postgres.SSLMode,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres, retrying", "attempt", i+1, "max", 5, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
		Timeout:  f.cfg.Pipeline.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

func (f *Factory) Dapr() (dapr.Client, error) {
	if f.daprCli != nil {
		return f.daprCli, nil
	}

	client, err := daprInfra.NewClient(daprInfra.Config{
		Host:     f.cfg.Dapr.Host,
		GRPCPort: f.cfg.Dapr.GRPCPort,
		APIToken: f.cfg.Dapr.APIToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init dapr client: %w", err)
	}

	f.daprCli = client
	return client, nil
}

// StateStore returns the projection store for the configured backend.
func (f *Factory) StateStore(ctx context.Context) (projection.Store, error) {
	switch f.cfg.State.Backend {
	case config.BackendDapr:
		client, err := f.Dapr()
		if err != nil {
			return nil, err
		}
		return daprInfra.NewStateStore(client, f.cfg.State.Name), nil
	case config.BackendRedis:
		client, err := f.Redis(ctx)
		if err != nil {
			return nil, err
		}
		return redis.NewStateStore(client, f.cfg.Redis.KeyPrefix), nil
	case config.BackendPostgres:
		repo, err := f.ProjectionRepository(ctx)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.BackendMemory:
		if f.memStore == nil {
			f.memStore = memory.NewStore()
		}
		return f.memStore, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", f.cfg.State.Backend)
	}
}

func (f *Factory) ProjectionRepository(ctx context.Context) (*postgres.ProjectionRepository, error) {
	pool, err := f.Postgres(ctx)
	if err != nil {
		return nil, err
	}
	return postgres.NewProjectionRepository(pool), nil
}

// Bus returns the message bus for the configured backend.
func (f *Factory) Bus() (publisher.Bus, error) {
	switch f.cfg.PubSub.Backend {
	case config.BackendDapr:
		client, err := f.Dapr()
		if err != nil {
			return nil, err
		}
		return daprInfra.NewBus(client, f.cfg.PubSub.Name), nil
	case config.BackendKafka:
		if f.kafkaProd == nil {
			f.kafkaProd = kafka.NewProducer(kafka.Config{Brokers: f.cfg.Kafka.Brokers})
		}
		return f.kafkaProd, nil
	case config.BackendMemory:
		return f.MemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown pubsub backend %q", f.cfg.PubSub.Backend)
	}
}

// Invoker returns the service invocation backend.
func (f *Factory) Invoker() (invocation.Invoker, error) {
	switch f.cfg.Invoke.Backend {
	case config.BackendDapr:
		client, err := f.Dapr()
		if err != nil {
			return nil, err
		}
		return daprInfra.NewInvoker(client), nil
	case config.BackendMemory:
		return f.MemoryInvoker(), nil
	default:
		return nil, fmt.Errorf("unknown invoke backend %q", f.cfg.Invoke.Backend)
	}
}

func (f *Factory) ReplayStore(ctx context.Context) (middleware.ReplayStore, error) {
	if f.cfg.Idem.Backend == config.BackendRedis {
		client, err := f.Redis(ctx)
		if err != nil {
			return nil, err
		}
		return redis.NewReplayStore(client), nil
	}
	return memory.NewReplayStore(), nil
}

func (f *Factory) MemoryBus() *memory.Bus {
	if f.memBus == nil {
		f.memBus = memory.NewBus(f.logger)
	}
	return f.memBus
}

func (f *Factory) MemoryInvoker() *memory.Invoker {
	if f.memInvoker == nil {
		f.memInvoker = memory.NewInvoker()
	}
	return f.memInvoker
}

func (f *Factory) Close() {
	if f.kafkaProd != nil {
		f.kafkaProd.Close()
	}
	if f.daprCli != nil {
		f.daprCli.Close()
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
}
