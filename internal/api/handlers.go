package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"orderpipeline/internal/domain/order"
	"orderpipeline/internal/inbound"
	"orderpipeline/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type UseCases struct {
	CreateOrder  *usecase.CreateOrder
	GetOrder     *usecase.GetOrder
	DeleteOrder  *usecase.DeleteOrder
	PublishOrder *usecase.PublishOrder
	InvokeOrder  *usecase.InvokeOrder
	ApplyEvent   *usecase.ApplyEvent
}

type Handlers struct {
	adapter *inbound.Adapter
	uc      UseCases
	logger  *slog.Logger
}

func NewHandlers(adapter *inbound.Adapter, uc UseCases, logger *slog.Logger) *Handlers {
	return &Handlers{
		adapter: adapter,
		uc:      uc,
		logger:  logger,
	}
}

// fail writes the error response. Server-side faults are logged as well.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "op", op, "path", r.URL.Path, "kind", kind, "error", err)
	} else {
		h.logger.Debug("request rejected", "op", op, "path", r.URL.Path, "kind", kind, "error", err)
	}
	writeError(w, status, kind, err)
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.adapter.ReceiveRequest(w, r)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}

	res, err := h.uc.CreateOrder.Execute(r.Context(), usecase.CreateOrderParams{
		Order:   o,
		Version: ifMatch(r),
	})
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}

	if res.Version != "" {
		w.Header().Set("ETag", quoteETag(res.Version))
	}
	writeJSON(w, http.StatusOK, res.Order)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r, "get order")
	if !ok {
		return
	}

	entry, found, err := h.uc.GetOrder.Execute(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if entry.Version != "" {
		w.Header().Set("ETag", quoteETag(entry.Version))
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, entry.Order)
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r, "delete order")
	if !ok {
		return
	}

	if err := h.uc.DeleteOrder.Execute(r.Context(), id); err != nil {
		h.fail(w, r, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) PublishOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.adapter.ReceiveRequest(w, r)
	if err != nil {
		h.fail(w, r, "publish order", err)
		return
	}

	env, err := h.uc.PublishOrder.Execute(r.Context(), o)
	if err != nil {
		h.fail(w, r, "publish order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"event_id": env.ID,
		"topic":    env.Topic,
	})
}

func (h *Handlers) InvokeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.adapter.ReceiveRequest(w, r)
	if err != nil {
		h.fail(w, r, "invoke order", err)
		return
	}

	resp, err := h.uc.InvokeOrder.Execute(r.Context(), o)
	if err != nil {
		h.fail(w, r, "invoke order", err)
		return
	}

	if json.Valid(resp) {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

// ReceiveEvent is the pub/sub delivery route.
func (h *Handlers) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	o, err := h.adapter.ReceiveRequest(w, r)
	if err != nil {
		h.fail(w, r, "receive event", err)
		return
	}

	if err := h.uc.ApplyEvent.Execute(r.Context(), o); err != nil {
		h.fail(w, r, "receive event", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "SUCCESS"})
}

func (h *Handlers) orderID(w http.ResponseWriter, r *http.Request, op string) (order.ID, bool) {
	id := order.StringID(chi.URLParam(r, "orderId"))
	if id.IsZero() {
		h.fail(w, r, op, fmt.Errorf("%w: missing order id", order.ErrValidation))
		return order.ID{}, false
	}
	return id, true
}

func ifMatch(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "*" {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
}

func quoteETag(version string) string {
	return `"` + version + `"`
}
