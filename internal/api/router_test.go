package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderpipeline/internal/domain/event"
	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/inbound"
	"orderpipeline/internal/infrastructure/memory"
	"orderpipeline/internal/invocation"
	"orderpipeline/internal/projection"
	"orderpipeline/internal/publisher"
	"orderpipeline/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	store   *memory.Store
	bus     *memory.Bus
	invoker *memory.Invoker
}

// failingStore answers every call with a connection error.
type failingStore struct{}

func (failingStore) Save(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func (failingStore) Get(context.Context, string) ([]byte, string, bool, error) {
	return nil, "", false, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func newTestServer(t *testing.T, publishOnly bool) *testServer {
	t.Helper()

	store := memory.NewStore()
	s := newTestServerWithStore(t, store, publishOnly)
	s.store = store
	return s
}

func newTestServerWithStore(t *testing.T, store projection.Store, publishOnly bool) *testServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := memory.NewBus(log)
	invoker := memory.NewInvoker()

	adapter := inbound.NewAdapter(0)
	projector := projection.NewProjector(store, time.Second)
	pub := publisher.New(bus, publisher.Config{Source: "order-processor", PubsubName: "pubsub", Timeout: time.Second})
	client := invocation.NewClient(invoker, invocation.Config{TargetAppID: "target", Method: "v1/orders", Timeout: time.Second})

	uc := UseCases{
		CreateOrder:  usecase.NewCreateOrder(projector, pub, "orders", publishOnly, log),
		GetOrder:     usecase.NewGetOrder(projector, log),
		DeleteOrder:  usecase.NewDeleteOrder(projector, log),
		PublishOrder: usecase.NewPublishOrder(pub, "orders", log),
		InvokeOrder:  usecase.NewInvokeOrder(client, log),
		ApplyEvent:   usecase.NewApplyEvent(projector, log),
	}

	subs := []Subscription{{PubsubName: "pubsub", Topic: "orders", Route: EventsRoute}}
	h := NewHandlers(adapter, uc, log)

	return &testServer{
		handler: NewRouter(h, memory.NewReplayStore(), subs),
		bus:     bus,
		invoker: invoker,
	}
}

func (s *testServer) do(t *testing.T, method, path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateThenGet(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orderId":42}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/orders/42", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orderId":42}`, rec.Body.String())
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
}

func TestGetAbsentOrderIsNoContent(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/orders/999", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestPublishModeFailureLeavesNoState(t *testing.T) {
	s := newTestServer(t, true)
	s.bus.FailWith(errors.New("broker unreachable"))

	rec := s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 7}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, kindPublish, decodeError(t, rec).Kind)

	assert.Equal(t, 0, s.store.Len())
	assert.Empty(t, s.bus.Published())
}

func TestPublishModeEmitsEnvelope(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": "p-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	published := s.bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "orders", published[0].Topic)
	assert.JSONEq(t, `{"orderId":"p-1"}`, string(published[0].Data))
	assert.Equal(t, 0, s.store.Len(), "projection is left to the delivery path")
}

func TestCreateRejectsInvalidOrder(t *testing.T) {
	s := newTestServer(t, false)

	for _, body := range []string{`{}`, `not json`, ``} {
		rec := s.do(t, http.MethodPost, "/orders", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, kindValidation, decodeError(t, rec).Kind, body)
	}

	rec := s.do(t, http.MethodPost, "/orders", "text/plain", `{"orderId":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.store.Len())
}

func TestDeleteOrder(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodDelete, "/orders/123", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "deleting an absent order succeeds")

	s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 123}`)
	rec = s.do(t, http.MethodDelete, "/orders/123", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/orders/123", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVersionedPrefix(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/v1/orders", "application/json", `{"orderId": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/orders/abc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orderId":"abc"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/orders/abc", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIfMatchConflict(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := rec.Header().Get("ETag")

	rec = s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 5}`, "If-Match", first)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 5}`, "If-Match", first)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, kindVersionConflict, decodeError(t, rec).Kind)
}

func TestReceiveEvent(t *testing.T) {
	s := newTestServer(t, false)
	body := `{"specversion":"1.0","id":"e-1","source":"checkout","type":"com.dapr.event.sent","topic":"orders","data":{"orderId":11}}`

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, EventsRoute, "application/cloudevents+json", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"SUCCESS"}`, rec.Body.String())
	}
	assert.Equal(t, 1, s.store.Len())

	rec := s.do(t, http.MethodPost, EventsRoute, "application/cloudevents+json", `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishRoute(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/orders/publish", "application/json", `{"orderId": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, s.bus.Published(), 1)
	assert.Equal(t, s.bus.Published()[0].ID, resp["event_id"])
	assert.Equal(t, "orders", resp["topic"])
}

func TestInvokeRoute(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/orders/invoke", "application/json", `{"orderId": 8}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, kindInvoke, decodeError(t, rec).Kind)

	var gotMethod string
	s.invoker.Register("target", func(_ context.Context, method string, payload []byte) ([]byte, error) {
		gotMethod = method
		return payload, nil
	})

	rec = s.do(t, http.MethodPost, "/orders/invoke", "application/json", `{"orderId": 8}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orderId":8}`, rec.Body.String())
	assert.Equal(t, "v1/orders", gotMethod)
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	s := newTestServer(t, true)

	first := s.do(t, http.MethodPost, "/orders/publish", "application/json", `{"orderId": 1}`, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code)

	second := s.do(t, http.MethodPost, "/orders/publish", "application/json", `{"orderId": 1}`, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Hit"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Len(t, s.bus.Published(), 1)
}

func TestDaprSubscribe(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/dapr/subscribe", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"pubsubname":"pubsub","topic":"orders","route":"/v1/events/orders"}]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{err: fmt.Errorf("x: %w", order.ErrValidation), status: http.StatusBadRequest, kind: kindValidation},
		{err: fmt.Errorf("x: %w", order.ErrVersionConflict), status: http.StatusConflict, kind: kindVersionConflict},
		{err: fmt.Errorf("x: %w", order.ErrStorageUnavailable), status: http.StatusInternalServerError, kind: kindStorage},
		{err: fmt.Errorf("x: %w", order.ErrPublish), status: http.StatusInternalServerError, kind: kindPublish},
		{err: fmt.Errorf("x: %w", order.ErrInvoke), status: http.StatusInternalServerError, kind: kindInvoke},
		{err: errors.New("boom"), status: http.StatusInternalServerError, kind: kindInternal},
	}

	for _, tt := range tests {
		status, kind := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.kind, kind, tt.err.Error())
	}
}

func TestStorageFaultIsReported(t *testing.T) {
	s := newTestServerWithStore(t, failingStore{}, false)

	tests := []struct {
		method, path, body string
	}{
		{method: http.MethodPost, path: "/orders", body: `{"orderId": 1}`},
		{method: http.MethodGet, path: "/orders/1"},
		{method: http.MethodDelete, path: "/orders/1"},
		{method: http.MethodPost, path: EventsRoute, body: `{"orderId": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "application/json", tt.body)
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, kindStorage, decodeError(t, rec).Kind)
		})
	}
}

func TestStaleETagAfterRecreateIsConflict(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stale := rec.Header().Get("ETag")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/orders/9", "", "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 9}`).Code)

	rec = s.do(t, http.MethodPost, "/orders", "application/json", `{"orderId": 9}`, "If-Match", stale)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, kindVersionConflict, decodeError(t, rec).Kind)
}

func TestIdempotencyKeySharedAcrossVersionPrefix(t *testing.T) {
	s := newTestServer(t, false)

	first := s.do(t, http.MethodPost, "/v1/orders/publish", "application/json", `{"orderId": 2}`, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusOK, first.Code)

	second := s.do(t, http.MethodPost, "/orders/publish", "application/json", `{"orderId": 2}`, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Hit"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Len(t, s.bus.Published(), 1)
}

func TestEnvelopeRoundTripsThroughAdapter(t *testing.T) {
	env := event.Envelope{ID: "x", SpecVersion: event.SpecVersion, Data: json.RawMessage(`{"orderId":1}`)}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	o, err := inbound.NewAdapter(0).Receive(event.ContentTypeCloudEvent, body)
	require.NoError(t, err)
	assert.Equal(t, "1", o.ID.String())
}
