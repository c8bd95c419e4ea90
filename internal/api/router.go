package api

import (
	"net/http"

	"orderpipeline/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	APIVersion = "v1"

	// EventsRoute is where the sidecar delivers subscribed orders.
	EventsRoute = "/" + APIVersion + "/events/orders"
)

type route struct {
	method     string
	pattern    string
	handler    http.HandlerFunc
	idempotent bool
}

// routes is the single table of order endpoints.
func (h *Handlers) routes() []route {
	return []route{
		{method: http.MethodPost, pattern: "/orders", handler: h.CreateOrder, idempotent: true},
		{method: http.MethodGet, pattern: "/orders/{orderId}", handler: h.GetOrder},
		{method: http.MethodDelete, pattern: "/orders/{orderId}", handler: h.DeleteOrder},
		{method: http.MethodPost, pattern: "/orders/publish", handler: h.PublishOrder, idempotent: true},
		{method: http.MethodPost, pattern: "/orders/invoke", handler: h.InvokeOrder, idempotent: true},
		{method: http.MethodPost, pattern: "/events/orders", handler: h.ReceiveEvent},
	}
}

// Subscription is one entry of the sidecar's programmatic subscription list.
type Subscription struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// NewRouter mounts the order routes under /v1 and, as the current
// version, at the root.
func NewRouter(h *Handlers, replay middleware.ReplayStore, subs []Subscription) http.Handler {
	if subs == nil {
		subs = []Subscription{}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/dapr/subscribe", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, subs)
	})

	r.Handle("/metrics", promhttp.Handler())

	mount := func(r chi.Router) {
		for _, rt := range h.routes() {
			if rt.idempotent {
				idem := middleware.Idempotency(replay, rt.method+" "+rt.pattern, h.logger)
				r.With(idem).Method(rt.method, rt.pattern, rt.handler)
				continue
			}
			r.Method(rt.method, rt.pattern, rt.handler)
		}
	}

	r.Route("/"+APIVersion, mount)
	r.Group(mount)

	return r
}
