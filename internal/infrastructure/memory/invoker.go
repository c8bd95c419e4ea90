package memory

import (
	"context"
	"fmt"
	"sync"
)

// InvokeFunc serves an invocation addressed to a registered app.
type InvokeFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

type Invoker struct {
	mu      sync.RWMutex
	targets map[string]InvokeFunc
}

func NewInvoker() *Invoker {
	return &Invoker{targets: make(map[string]InvokeFunc)}
}

func (i *Invoker) Register(appID string, fn InvokeFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.targets[appID] = fn
}

func (i *Invoker) Invoke(ctx context.Context, appID, method string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.RLock()
	fn, ok := i.targets[appID]
	i.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("app %q is not registered", appID)
	}
	return fn(ctx, method, payload)
}
