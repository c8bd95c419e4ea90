package dapr

import (
	"context"
	"fmt"

	"orderpipeline/internal/domain/order"

	dapr "github.com/dapr/go-sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stateClient interface {
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...dapr.StateOption) error
	SaveStateWithETag(ctx context.Context, storeName, key string, data []byte, etag string, meta map[string]string, so ...dapr.StateOption) error
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*dapr.StateItem, error)
	DeleteState(ctx context.Context, storeName, key string, meta map[string]string) error
}

// StateStore stores projection entries in a sidecar state store component.
// Versions are the component's ETags.
type StateStore struct {
	client    stateClient
	storeName string
}

func NewStateStore(client stateClient, storeName string) *StateStore {
	return &StateStore{client: client, storeName: storeName}
}

// Save does not learn the new ETag from the sidecar, so it returns an empty
// version; the next Get reports it.
func (s *StateStore) Save(ctx context.Context, key string, value []byte, version string) (string, error) {
	if version == "" {
		if err := s.client.SaveState(ctx, s.storeName, key, value, nil); err != nil {
			return "", fmt.Errorf("save state %s/%s: %w", s.storeName, key, err)
		}
		return "", nil
	}

	err := s.client.SaveStateWithETag(ctx, s.storeName, key, value, version, nil,
		dapr.WithConcurrency(dapr.StateConcurrencyFirstWrite))
	if status.Code(err) == codes.Aborted {
		return "", order.ErrVersionConflict
	}
	if err != nil {
		return "", fmt.Errorf("save state %s/%s: %w", s.storeName, key, err)
	}
	return "", nil
}

func (s *StateStore) Get(ctx context.Context, key string) ([]byte, string, bool, error) {
	item, err := s.client.GetState(ctx, s.storeName, key, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("get state %s/%s: %w", s.storeName, key, err)
	}
	if item == nil || len(item.Value) == 0 {
		return nil, "", false, nil
	}
	return item.Value, item.Etag, true, nil
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	if err := s.client.DeleteState(ctx, s.storeName, key, nil); err != nil {
		return fmt.Errorf("delete state %s/%s: %w", s.storeName, key, err)
	}
	return nil
}
