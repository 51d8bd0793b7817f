package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tunnelarr/models"
	"tunnelarr/services/transfers"
)

type transferManager interface {
	Add(ctx context.Context, req transfers.AddRequest) (models.Transfer, error)
	Get(id string) (models.Transfer, error)
	List() []models.Transfer
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, deleteFiles bool) error
}

var _ transferManager = (*transfers.Service)(nil)

type TransfersHandler struct {
	Manager transferManager
}

func NewTransfersHandler(manager transferManager) *TransfersHandler {
	return &TransfersHandler{Manager: manager}
}

type addTransferRequest struct {
	Client      string `json:"client,omitempty"`
	Locator     string `json:"locator"`
	Name        string `json:"name,omitempty"`
	SavePath    string `json:"savePath,omitempty"`
	Category    string `json:"category,omitempty"`
	WaitSeconds int    `json:"waitSeconds,omitempty"`
}

// Add starts a new gated transfer. A tunnel denial is reported as 403 with
// the denied record so the caller can see the terminal state.
func (h *TransfersHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Locator) == "" {
		http.Error(w, "locator is required", http.StatusBadRequest)
		return
	}

	transfer, err := h.Manager.Add(r.Context(), transfers.AddRequest{
		ClientName:    req.Client,
		Locator:       req.Locator,
		Name:          req.Name,
		SavePath:      req.SavePath,
		Category:      req.Category,
		WaitForTunnel: time.Duration(req.WaitSeconds) * time.Second,
	})

	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, transfers.ErrTunnelInactive):
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(transfer)
	case errors.Is(err, transfers.ErrClientNotFound):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(transfer)
	default:
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(transfer)
	}
}

// List returns all tracked transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.Manager.List()
	if list == nil {
		list = []models.Transfer{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// Get returns one transfer.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.Manager.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfer)
}

// Pause pauses one transfer.
func (h *TransfersHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.Manager.Pause)
}

// Resume resumes one transfer.
func (h *TransfersHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.Manager.Resume)
}

// Delete removes one transfer, with files when ?deleteFiles=true.
func (h *TransfersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleteFiles := r.URL.Query().Get("deleteFiles") == "true"

	if err := h.Manager.Remove(r.Context(), id, deleteFiles); err != nil {
		h.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransfersHandler) action(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	id := mux.Vars(r)["id"]
	if err := fn(r.Context(), id); err != nil {
		h.writeActionError(w, err)
		return
	}

	transfer, err := h.Manager.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfer)
}

func (h *TransfersHandler) writeActionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transfers.ErrTransferUnknown):
		status = http.StatusNotFound
	case errors.Is(err, transfers.ErrTransferNotRemovable):
		status = http.StatusConflict
	case errors.Is(err, transfers.ErrClientNotFound):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
