package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BackendDapr     = "dapr"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendKafka    = "kafka"

	CreateModeUpsert  = "upsert"
	CreateModePublish = "publish"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Pipeline Pipeline `yaml:"pipeline"`
	PubSub   PubSub   `yaml:"pubsub"`
	State    State    `yaml:"state"`
	Invoke   Invoke   `yaml:"invoke"`
	Idem     Idem     `yaml:"idempotency"`
	Dapr     Dapr     `yaml:"dapr"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"order-processor"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"5001"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Pipeline struct {
	// CreateMode decides what POST /orders does: "upsert" writes the
	// projection directly, "publish" only emits the order.
	CreateMode   string        `yaml:"create_mode" env:"PIPELINE_CREATE_MODE" env-default:"upsert"`
	Timeout      time.Duration `yaml:"timeout" env:"PIPELINE_TIMEOUT" env-default:"5s"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"PIPELINE_MAX_BODY_BYTES" env-default:"1048576"`
}

type PubSub struct {
	Backend string `yaml:"backend" env:"PUBSUB_BACKEND" env-default:"dapr"`
	Name    string `yaml:"name" env:"PUBSUB_NAME" env-default:"pubsub"`
	Topic   string `yaml:"topic" env:"PUBSUB_TOPIC" env-default:"orders"`
}

type State struct {
	Backend string `yaml:"backend" env:"STATE_BACKEND" env-default:"dapr"`
	Name    string `yaml:"name" env:"KVSTORE_NAME" env-default:"kvstore"`
}

type Invoke struct {
	Backend     string `yaml:"backend" env:"INVOKE_BACKEND" env-default:"dapr"`
	TargetAppID string `yaml:"target_app_id" env:"INVOKE_APPID" env-default:"target"`
	Method      string `yaml:"method" env:"INVOKE_METHOD" env-default:"v1/orders"`
}

// Idem selects where Idempotency-Key replays are kept.
type Idem struct {
	Backend string `yaml:"backend" env:"IDEMPOTENCY_BACKEND" env-default:"memory"`
}

type Dapr struct {
	Host     string `yaml:"host" env:"DAPR_HOST" env-default:"127.0.0.1"`
	GRPCPort string `yaml:"grpc_port" env:"DAPR_GRPC_PORT" env-default:"50001"`
	APIToken string `yaml:"api_token" env:"DAPR_API_TOKEN"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"orders"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

type Redis struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"kvstore||"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"order-processor"`
	StartOffset string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
	MetricsPort string   `yaml:"metrics_port" env:"KAFKA_METRICS_PORT" env-default:"9091"`
}

// New reads config.yaml when present and lets environment variables
// override it.
func New() (*Config, error) {
	return Load("config.yaml")
}

func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Pipeline.CreateMode {
	case CreateModeUpsert, CreateModePublish:
	default:
		return fmt.Errorf("config error: unknown create mode %q", c.Pipeline.CreateMode)
	}

	switch c.State.Backend {
	case BackendDapr, BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("config error: unknown state backend %q", c.State.Backend)
	}

	switch c.PubSub.Backend {
	case BackendDapr, BackendKafka, BackendMemory:
	default:
		return fmt.Errorf("config error: unknown pubsub backend %q", c.PubSub.Backend)
	}

	switch c.Invoke.Backend {
	case BackendDapr, BackendMemory:
	default:
		return fmt.Errorf("config error: unknown invoke backend %q", c.Invoke.Backend)
	}

	switch c.Idem.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("config error: unknown idempotency backend %q", c.Idem.Backend)
	}

	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("config error: pipeline timeout must be positive")
	}

	return nil
}
