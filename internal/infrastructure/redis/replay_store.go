package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orderpipeline/internal/api/middleware"

	"github.com/redis/go-redis/v9"
)

const inFlightMarker = "PROCESSING"

// ReplayStore backs the idempotency middleware.
type ReplayStore struct {
	client *redis.Client
}

func NewReplayStore(client *redis.Client) *ReplayStore {
	return &ReplayStore{client: client}
}

func (s *ReplayStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// SETNX with a short TTL so a crashed request does not hold the key forever.
	acquired, err := s.client.SetNX(ctx, key, inFlightMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", key, err)
	}
	return acquired, nil
}

func (s *ReplayStore) Load(ctx context.Context, key string) (middleware.Replay, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return middleware.Replay{}, false, nil
	}
	if err != nil {
		return middleware.Replay{}, false, fmt.Errorf("load %s: %w", key, err)
	}
	if val == inFlightMarker {
		return middleware.Replay{}, false, nil
	}

	var r middleware.Replay
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return middleware.Replay{}, false, fmt.Errorf("decode replay %s: %w", key, err)
	}
	return r, true, nil
}

func (s *ReplayStore) Complete(ctx context.Context, key string, r middleware.Replay, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode replay %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

func (s *ReplayStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
