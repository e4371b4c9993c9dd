package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-bulkpush-service/internal/engine"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

const maxRequestBytes = 1 << 20

// Dispatcher is the engine operation behind the send endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, callerID string, req *dispatch.SendRequest) (*dispatch.Result, error)
}

type DispatchAPI struct {
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

func NewDispatchAPI(dispatcher Dispatcher, logger *slog.Logger) *DispatchAPI {
	return &DispatchAPI{
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "DispatchAPI"),
	}
}

// errorBody is returned for classified engine failures. Result is only
// present when some batches were sent before a fault.
type errorBody struct {
	Error  string           `json:"error"`
	Kind   engine.Kind      `json:"kind"`
	Result *dispatch.Result `json:"result,omitempty"`
}

// SendPush handles POST /api/v1/push/send.
func (api *DispatchAPI) SendPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dispatch.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		api.Logger.Warn("SendPush: JSON Decode failed", "caller", callerID, "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Kind: engine.KindInvalidRequest})
		return
	}

	result, err := api.Dispatcher.Dispatch(ctx, callerID, &req)
	if err != nil {
		kind := engine.KindOf(err)
		if kind == "" {
			api.Logger.Error("SendPush: dispatch failed", "caller", callerID, "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "dispatch failed")
			return
		}
		api.Logger.Warn("SendPush: dispatch rejected", "caller", callerID, "kind", kind, "err", err)
		writeJSON(w, statusFor(kind), errorBody{Error: err.Error(), Kind: kind, Result: result})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func statusFor(kind engine.Kind) int {
	switch kind {
	case engine.KindInvalidRequest:
		return http.StatusBadRequest
	case engine.KindCallerNotFound:
		return http.StatusNotFound
	case engine.KindPermissionDenied:
		return http.StatusForbidden
	case engine.KindGatewayFault:
		return http.StatusBadGateway
	case engine.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
