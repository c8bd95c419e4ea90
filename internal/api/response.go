package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"orderpipeline/internal/domain/order"
)

const (
	kindValidation      = "validation_failed"
	kindStorage         = "storage_unavailable"
	kindPublish         = "publish_failed"
	kindInvoke          = "invoke_failed"
	kindVersionConflict = "version_conflict"
	kindInternal        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps a pipeline error to its HTTP status and error kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrValidation):
		return http.StatusBadRequest, kindValidation
	case errors.Is(err, order.ErrVersionConflict):
		return http.StatusConflict, kindVersionConflict
	case errors.Is(err, order.ErrStorageUnavailable):
		return http.StatusInternalServerError, kindStorage
	case errors.Is(err, order.ErrPublish):
		return http.StatusInternalServerError, kindPublish
	case errors.Is(err, order.ErrInvoke):
		return http.StatusInternalServerError, kindInvoke
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
