package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"orderpipeline/internal/api/middleware"
	"orderpipeline/internal/domain/order"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Config{Addr: addr, Timeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func TestStateStoreRoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewStateStore(client, "kvstore||")
	ctx := context.Background()

	_, _, found, err := s.Get(ctx, "order1")
	require.NoError(t, err)
	assert.False(t, found)

	version, err := s.Save(ctx, "order1", []byte(`{"orderId":1}`), "")
	require.NoError(t, err)
	assert.NotEmpty(t, version)
	assert.True(t, mr.Exists("kvstore||order1"))

	value, got, found, err := s.Get(ctx, "order1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, version, got)
	assert.JSONEq(t, `{"orderId":1}`, string(value))

	require.NoError(t, s.Delete(ctx, "order1"))
	require.NoError(t, s.Delete(ctx, "order1"), "deleting an absent key succeeds")

	_, _, found, err = s.Get(ctx, "order1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStateStoreVersions(t *testing.T) {
	_, client := newTestClient(t)
	s := NewStateStore(client, "kvstore||")
	ctx := context.Background()

	first, err := s.Save(ctx, "order1", []byte(`{"orderId":1}`), "")
	require.NoError(t, err)

	second, err := s.Save(ctx, "order1", []byte(`{"orderId":1}`), first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = s.Save(ctx, "order1", []byte(`{"orderId":1}`), first)
	assert.ErrorIs(t, err, order.ErrVersionConflict)

	_, err = s.Save(ctx, "order2", []byte(`{"orderId":2}`), first)
	assert.ErrorIs(t, err, order.ErrVersionConflict, "a version for an absent key is stale")
}

func TestStateStoreNeverReusesVersionAfterDelete(t *testing.T) {
	_, client := newTestClient(t)
	s := NewStateStore(client, "kvstore||")
	ctx := context.Background()

	stale, err := s.Save(ctx, "order9", []byte(`{"orderId":9}`), "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "order9"))

	fresh, err := s.Save(ctx, "order9", []byte(`{"orderId":9}`), "")
	require.NoError(t, err)
	assert.NotEqual(t, stale, fresh)

	_, err = s.Save(ctx, "order9", []byte(`{"orderId":9}`), stale)
	assert.ErrorIs(t, err, order.ErrVersionConflict)
}

// interveningWriter writes key from a second client right before the next
// pipeline runs, which aborts a transaction watching key.
type interveningWriter struct {
	armed atomic.Bool
	other *redis.Client
	key   string
}

func (h *interveningWriter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *interveningWriter) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *interveningWriter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.armed.CompareAndSwap(true, false) {
			if err := h.other.HSet(ctx, h.key, fieldValue, `{"orderId":"other"}`).Err(); err != nil {
				return err
			}
		}
		return next(ctx, cmds)
	}
}

func TestStateStoreConcurrentWriteIsConflict(t *testing.T) {
	mr, client := newTestClient(t)
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { other.Close() })

	hook := &interveningWriter{other: other, key: "kvstore||order1"}
	client.AddHook(hook)

	s := NewStateStore(client, "kvstore||")
	ctx := context.Background()

	version, err := s.Save(ctx, "order1", []byte(`{"orderId":1}`), "")
	require.NoError(t, err)

	hook.armed.Store(true)
	_, err = s.Save(ctx, "order1", []byte(`{"orderId":1}`), version)
	assert.ErrorIs(t, err, order.ErrVersionConflict)
	assert.False(t, hook.armed.Load(), "the intervening write ran")
}

func TestStateStoreFault(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewStateStore(client, "kvstore||")
	mr.Close()

	_, err := s.Save(context.Background(), "order1", []byte(`{}`), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, order.ErrVersionConflict)
}

func TestReplayStore(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewReplayStore(client)
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "idempotency:POST /orders:k", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "idempotency:POST /orders:k", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "the key is already reserved")

	_, found, err := s.Load(ctx, "idempotency:POST /orders:k")
	require.NoError(t, err)
	assert.False(t, found, "an in-flight reservation has no response yet")

	replay := middleware.Replay{Status: 200, ContentType: "application/json", Body: []byte(`{"orderId":1}`)}
	require.NoError(t, s.Complete(ctx, "idempotency:POST /orders:k", replay, time.Minute))

	got, found, err := s.Load(ctx, "idempotency:POST /orders:k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, replay, got)

	mr.FastForward(2 * time.Minute)
	_, found, err = s.Load(ctx, "idempotency:POST /orders:k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReplayStoreRelease(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewReplayStore(client)
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "k"))
	assert.False(t, mr.Exists("k"))

	ok, err = s.Reserve(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
