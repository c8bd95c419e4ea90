package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("PUBSUB_TOPIC", "orders-v2")
	t.Setenv("STATE_BACKEND", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "order-processor", cfg.App.Name)
	assert.Equal(t, "5001", cfg.HTTP.Port)
	assert.Equal(t, "orders-v2", cfg.PubSub.Topic)
	assert.Equal(t, "pubsub", cfg.PubSub.Name)
	assert.Equal(t, "kvstore", cfg.State.Name)
	assert.Equal(t, BackendMemory, cfg.State.Backend)
	assert.Equal(t, CreateModeUpsert, cfg.Pipeline.CreateMode)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  create_mode: publish
  timeout: 2s
pubsub:
  backend: kafka
  topic: created
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CreateModePublish, cfg.Pipeline.CreateMode)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, BackendKafka, cfg.PubSub.Backend)
	assert.Equal(t, "created", cfg.PubSub.Topic)
	assert.Equal(t, "order-processor", cfg.App.Name)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STATE_BACKEND", "cassandra")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "unknown state backend")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Pipeline: Pipeline{CreateMode: CreateModeUpsert, Timeout: time.Second},
			PubSub:   PubSub{Backend: BackendDapr},
			State:    State{Backend: BackendDapr},
			Invoke:   Invoke{Backend: BackendDapr},
			Idem:     Idem{Backend: BackendMemory},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := map[string]func(*Config){
		"create mode":    func(c *Config) { c.Pipeline.CreateMode = "replace" },
		"timeout":        func(c *Config) { c.Pipeline.Timeout = 0 },
		"pubsub backend": func(c *Config) { c.PubSub.Backend = BackendPostgres },
		"invoke backend": func(c *Config) { c.Invoke.Backend = BackendKafka },
		"idem backend":   func(c *Config) { c.Idem.Backend = BackendDapr },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
