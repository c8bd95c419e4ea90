package memory

import (
	"context"
	"sync"
	"time"

	"orderpipeline/internal/api/middleware"
)

type replayItem struct {
	replay   *middleware.Replay
	expireAt time.Time
}

// ReplayStore keeps idempotency replays in process memory.
type ReplayStore struct {
	mu    sync.Mutex
	items map[string]replayItem
	now   func() time.Time
}

func NewReplayStore() *ReplayStore {
	return &ReplayStore{items: make(map[string]replayItem), now: time.Now}
}

func (s *ReplayStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[key]; ok && s.now().Before(it.expireAt) {
		return false, nil
	}
	s.items[key] = replayItem{expireAt: s.now().Add(ttl)}
	return true, nil
}

func (s *ReplayStore) Load(_ context.Context, key string) (middleware.Replay, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok || it.replay == nil || !s.now().Before(it.expireAt) {
		return middleware.Replay{}, false, nil
	}
	return *it.replay, true, nil
}

func (s *ReplayStore) Complete(_ context.Context, key string, r middleware.Replay, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = replayItem{replay: &r, expireAt: s.now().Add(ttl)}
	return nil
}

func (s *ReplayStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}
