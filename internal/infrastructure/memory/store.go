// Package memory holds in-process stand-ins for the sidecar's building
// blocks, used for local runs and tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"orderpipeline/internal/domain/order"
)

type entry struct {
	value   []byte
	version uint64
}

// Store is a key/value store. Versions come from one store-wide counter, so
// a token is never issued twice, not even after a key is deleted and
// written again.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	seq     uint64
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) Save(ctx context.Context, key string, value []byte, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	if version != "" && (!ok || strconv.FormatUint(cur.version, 10) != version) {
		return "", order.ErrVersionConflict
	}

	s.seq++
	s.entries[key] = entry{value: append([]byte(nil), value...), version: s.seq}
	return strconv.FormatUint(s.seq, 10), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, "", false, nil
	}
	return append([]byte(nil), e.value...), strconv.FormatUint(e.version, 10), true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
