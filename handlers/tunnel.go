package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tunnelarr/models"
	"tunnelarr/services/tunnel"
)

type tunnelGate interface {
	Status(ctx context.Context) (models.ConnectionStatus, error)
	IsActive(ctx context.Context) bool
	WaitUntilActive(ctx context.Context, timeout time.Duration) bool
}

var _ tunnelGate = (*tunnel.Service)(nil)

type TunnelHandler struct {
	Gate tunnelGate
}

func NewTunnelHandler(gate tunnelGate) *TunnelHandler {
	return &TunnelHandler{Gate: gate}
}

// Status reports the current tunnel observation. An unreachable provider is
// reported as disconnected rather than an error, matching the gate's
// fail-closed reading.
func (h *TunnelHandler) Status(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Active bool                     `json:"active"`
		Status *models.ConnectionStatus `json:"status,omitempty"`
		Error  string                   `json:"error,omitempty"`
	}

	status, err := h.Gate.Status(r.Context())
	resp := response{}
	switch {
	case errors.Is(err, tunnel.ErrProviderUnreachable):
		resp.Error = err.Error()
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	default:
		resp.Active = status.Connected
		resp.Status = &status
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type waitRequest struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// Wait blocks until the tunnel reports connected or the timeout elapses,
// and reports which of the two happened.
func (h *TunnelHandler) Wait(w http.ResponseWriter, r *http.Request) {
	req := waitRequest{TimeoutSeconds: 30}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.TimeoutSeconds <= 0 || req.TimeoutSeconds > 300 {
		http.Error(w, "timeoutSeconds must be between 1 and 300", http.StatusBadRequest)
		return
	}

	active := h.Gate.WaitUntilActive(r.Context(), time.Duration(req.TimeoutSeconds)*time.Second)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"active": active})
}
