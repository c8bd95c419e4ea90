// Package inbound turns raw requests and bus deliveries into validated orders.
package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"orderpipeline/internal/domain/event"
	"orderpipeline/internal/domain/order"
)

const DefaultMaxBodyBytes = 1 << 20

type Adapter struct {
	maxBodyBytes int64
}

func NewAdapter(maxBodyBytes int64) *Adapter {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Adapter{maxBodyBytes: maxBodyBytes}
}

// ReceiveRequest reads the request body and delegates to Receive.
func (a *Adapter) ReceiveRequest(w http.ResponseWriter, r *http.Request) (order.Order, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return order.Order{}, fmt.Errorf("%w: body exceeds %d bytes", order.ErrValidation, a.maxBodyBytes)
		}
		return order.Order{}, fmt.Errorf("%w: read body: %v", order.ErrValidation, err)
	}
	return a.Receive(r.Header.Get("Content-Type"), body)
}

// Receive parses body according to contentType. A structured event yields
// the order held in its data field. Receive performs no I/O and keeps no
// record of what it has seen.
func (a *Adapter) Receive(contentType string, body []byte) (order.Order, error) {
	if int64(len(body)) > a.maxBodyBytes {
		return order.Order{}, fmt.Errorf("%w: body exceeds %d bytes", order.ErrValidation, a.maxBodyBytes)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return order.Order{}, fmt.Errorf("%w: empty body", order.ErrValidation)
	}

	mediaType := event.ContentTypeJSON
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return order.Order{}, fmt.Errorf("%w: content type %q: %v", order.ErrValidation, contentType, err)
		}
		mediaType = mt
	}

	var payload []byte
	switch mediaType {
	case event.ContentTypeJSON:
		payload = body
	case event.ContentTypeCloudEvent:
		data, err := envelopeData(body)
		if err != nil {
			return order.Order{}, err
		}
		payload = data
	default:
		return order.Order{}, fmt.Errorf("%w: unsupported content type %q", order.ErrValidation, mediaType)
	}

	return decodeOrder(payload)
}

func envelopeData(body []byte) ([]byte, error) {
	var env event.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", order.ErrValidation, err)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: envelope has no data", order.ErrValidation)
	}

	// Some publishers serialize the order before handing it to the sidecar,
	// which then carries it as a JSON string.
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: decode envelope data: %v", order.ErrValidation, err)
		}
		data = []byte(inner)
	}

	return data, nil
}

func decodeOrder(payload []byte) (order.Order, error) {
	if !json.Valid(payload) {
		return order.Order{}, fmt.Errorf("%w: body is not valid JSON", order.ErrValidation)
	}

	var o order.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return order.Order{}, fmt.Errorf("%w: decode order: %v", order.ErrValidation, err)
	}

	if err := o.Validate(); err != nil {
		return order.Order{}, err
	}

	return o, nil
}
