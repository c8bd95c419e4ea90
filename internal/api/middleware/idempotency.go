package middleware

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIdempotencyHit = "X-Idempotency-Hit"

	inFlightTTL  = 10 * time.Second
	completedTTL = 24 * time.Hour
)

// Replay is a stored response for an idempotency key.
type Replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// ReplayStore persists idempotency keys.
type ReplayStore interface {
	// Reserve claims key for an in-flight request. It reports false when
	// the key is already claimed or completed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Load returns the completed response for key, if any.
	Load(ctx context.Context, key string) (Replay, bool, error)
	Complete(ctx context.Context, key string, r Replay, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Failed responses release the key so the caller can retry.
// Keys are scoped by route, so the same route reached through different
// prefixes shares its replays.
func Idempotency(store ReplayStore, route string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only apply to state-changing methods
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s:%s", route, key)
			ctx := r.Context()

			replay, found, err := store.Load(ctx, idemKey)
			if err != nil {
				logger.Warn("idempotency store unavailable", "route", route, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if found {
				w.Header().Set(HeaderIdempotencyHit, "true")
				if replay.ContentType != "" {
					w.Header().Set("Content-Type", replay.ContentType)
				}
				w.WriteHeader(replay.Status)
				w.Write(replay.Body)
				return
			}

			acquired, err := store.Reserve(ctx, idemKey, inFlightTTL)
			if err != nil {
				logger.Warn("idempotency store unavailable", "route", route, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error":"concurrent request with the same idempotency key","kind":"idempotency_conflict"}`))
				return
			}

			var buf bytes.Buffer
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			// Detach from the request so a client disconnect does not leave the key reserved.
			storeCtx := context.WithoutCancel(ctx)
			if status < 200 || status >= 300 {
				if err := store.Release(storeCtx, idemKey); err != nil {
					logger.Error("failed to release idempotency key", "key", idemKey, "error", err)
				}
				return
			}
			err = store.Complete(storeCtx, idemKey, Replay{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        buf.Bytes(),
			}, completedTTL)
			if err != nil {
				logger.Error("failed to store idempotent response", "key", idemKey, "error", err)
			}
		})
	}
}
