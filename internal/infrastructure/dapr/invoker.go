package dapr

import (
	"context"
	"fmt"

	"orderpipeline/internal/domain/event"

	dapr "github.com/dapr/go-sdk/client"
)

type invokeClient interface {
	InvokeMethodWithContent(ctx context.Context, appID, methodName, verb string, content *dapr.DataContent) ([]byte, error)
}

type Invoker struct {
	client invokeClient
}

func NewInvoker(client invokeClient) *Invoker {
	return &Invoker{client: client}
}

// Invoke POSTs payload as JSON to method on appID.
func (i *Invoker) Invoke(ctx context.Context, appID, method string, payload []byte) ([]byte, error) {
	out, err := i.client.InvokeMethodWithContent(ctx, appID, method, "post", &dapr.DataContent{
		ContentType: event.ContentTypeJSON,
		Data:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: %w", appID, method, err)
	}
	return out, nil
}
