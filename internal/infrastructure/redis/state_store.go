package redis

import (
	"context"
	"errors"
	"fmt"

	"orderpipeline/internal/domain/order"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldValue   = "value"
	fieldVersion = "version"
)

// StateStore keeps each projection entry in a hash holding the value and
// a version. Every write stores a fresh random version, so a token taken
// before a delete never matches the recreated entry.
type StateStore struct {
	client *redis.Client
	prefix string
}

func NewStateStore(client *redis.Client, prefix string) *StateStore {
	return &StateStore{client: client, prefix: prefix}
}

func (s *StateStore) key(k string) string {
	return s.prefix + k
}

func (s *StateStore) Save(ctx context.Context, key string, value []byte, version string) (string, error) {
	rk := s.key(key)
	newVersion := uuid.NewString()

	if version == "" {
		if err := s.client.HSet(ctx, rk, fieldValue, value, fieldVersion, newVersion).Err(); err != nil {
			return "", fmt.Errorf("save %s: %w", rk, err)
		}
		return newVersion, nil
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, rk, fieldVersion).Result()
		if errors.Is(err, redis.Nil) || (err == nil && cur != version) {
			return order.ErrVersionConflict
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, fieldValue, value, fieldVersion, newVersion)
			return nil
		})
		return err
	}, rk)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		// Another writer touched the key between WATCH and EXEC.
		return "", order.ErrVersionConflict
	case errors.Is(err, order.ErrVersionConflict):
		return "", err
	case err != nil:
		return "", fmt.Errorf("save %s: %w", rk, err)
	}

	return newVersion, nil
}

func (s *StateStore) Get(ctx context.Context, key string) ([]byte, string, bool, error) {
	rk := s.key(key)
	fields, err := s.client.HGetAll(ctx, rk).Result()
	if err != nil {
		return nil, "", false, fmt.Errorf("get %s: %w", rk, err)
	}

	value, ok := fields[fieldValue]
	if !ok {
		return nil, "", false, nil
	}
	return []byte(value), fields[fieldVersion], true, nil
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	rk := s.key(key)
	if err := s.client.Del(ctx, rk).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", rk, err)
	}
	return nil
}
