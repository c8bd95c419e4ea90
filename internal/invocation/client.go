// Package invocation calls other services through the sidecar.
package invocation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderpipeline/internal/domain/order"
)

const DefaultTimeout = 5 * time.Second

// Invoker is the point-to-point call primitive.
type Invoker interface {
	Invoke(ctx context.Context, appID, method string, payload []byte) ([]byte, error)
}

type Config struct {
	TargetAppID string
	Method      string
	Timeout     time.Duration
}

type Client struct {
	invoker Invoker
	cfg     Config
}

func NewClient(invoker Invoker, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{invoker: invoker, cfg: cfg}
}

// Invoke sends o to the configured target once and returns its response.
func (c *Client) Invoke(ctx context.Context, o order.Order) ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal order: %v", order.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.invoker.Invoke(ctx, c.cfg.TargetAppID, c.cfg.Method, payload)
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: %w: %w", c.cfg.TargetAppID, c.cfg.Method, order.ErrInvoke, err)
	}

	return resp, nil
}
