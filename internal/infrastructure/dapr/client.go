// Package dapr adapts the sidecar's state, pub/sub and invocation APIs.
package dapr

import (
	"fmt"
	"net"

	dapr "github.com/dapr/go-sdk/client"
)

type Config struct {
	Host     string
	GRPCPort string
	APIToken string
}

func NewClient(cfg Config) (dapr.Client, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.GRPCPort)
	client, err := dapr.NewClientWithAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("connect to sidecar at %s: %w", addr, err)
	}

	if cfg.APIToken != "" {
		client.WithAuthToken(cfg.APIToken)
	}

	return client, nil
}
