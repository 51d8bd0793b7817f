package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"tunnelarr/models"
	"tunnelarr/services/transfers"
)

// stubManager is a canned transfer manager for handler tests.
type stubManager struct {
	addResult models.Transfer
	addErr    error
	transfers map[string]models.Transfer
	removed   []string
	removeErr error
}

func (m *stubManager) Add(_ context.Context, req transfers.AddRequest) (models.Transfer, error) {
	return m.addResult, m.addErr
}

func (m *stubManager) Get(id string) (models.Transfer, error) {
	t, ok := m.transfers[id]
	if !ok {
		return models.Transfer{}, transfers.ErrTransferUnknown
	}
	return t, nil
}

func (m *stubManager) List() []models.Transfer {
	var out []models.Transfer
	for _, t := range m.transfers {
		out = append(out, t)
	}
	return out
}

func (m *stubManager) Pause(_ context.Context, id string) error {
	if _, ok := m.transfers[id]; !ok {
		return transfers.ErrTransferUnknown
	}
	return nil
}

func (m *stubManager) Resume(_ context.Context, id string) error {
	if _, ok := m.transfers[id]; !ok {
		return transfers.ErrTransferUnknown
	}
	return nil
}

func (m *stubManager) Remove(_ context.Context, id string, deleteFiles bool) error {
	if _, ok := m.transfers[id]; !ok {
		return transfers.ErrTransferUnknown
	}
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, id)
	return nil
}

func newTransfersRouter(manager *stubManager) *mux.Router {
	handler := NewTransfersHandler(manager)
	r := mux.NewRouter()
	r.HandleFunc("/api/transfers", handler.List).Methods(http.MethodGet)
	r.HandleFunc("/api/transfers", handler.Add).Methods(http.MethodPost)
	r.HandleFunc("/api/transfers/{id}", handler.Get).Methods(http.MethodGet)
	r.HandleFunc("/api/transfers/{id}", handler.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/transfers/{id}/pause", handler.Pause).Methods(http.MethodPost)
	return r
}

func TestAddTransferRequiresLocator(t *testing.T) {
	router := newTransfersRouter(&stubManager{})

	req := httptest.NewRequest(http.MethodPost, "/api/transfers", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAddTransferDeniedReturns403(t *testing.T) {
	manager := &stubManager{
		addResult: models.Transfer{ID: "t1", State: models.TransferDenied},
		addErr:    transfers.ErrTunnelInactive,
	}
	router := newTransfersRouter(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/transfers", strings.NewReader(`{"locator":"magnet:?xt=urn:btih:abc"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a gate denial, got %d", rec.Code)
	}
	var body models.Transfer
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.State != models.TransferDenied {
		t.Fatalf("expected the denied record in the response, got state %s", body.State)
	}
}

func TestAddTransferCreated(t *testing.T) {
	manager := &stubManager{
		addResult: models.Transfer{ID: "t2", State: models.TransferActive, HandleID: "abc"},
	}
	router := newTransfersRouter(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/transfers", strings.NewReader(`{"locator":"magnet:?xt=urn:btih:abc","waitSeconds":10}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestGetTransferNotFound(t *testing.T) {
	router := newTransfersRouter(&stubManager{transfers: map[string]models.Transfer{}})

	req := httptest.NewRequest(http.MethodGet, "/api/transfers/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPauseTransfer(t *testing.T) {
	manager := &stubManager{transfers: map[string]models.Transfer{
		"t3": {ID: "t3", State: models.TransferPaused},
	}}
	router := newTransfersRouter(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/transfers/t3/pause", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDeleteTransfer(t *testing.T) {
	manager := &stubManager{transfers: map[string]models.Transfer{
		"t4": {ID: "t4", State: models.TransferActive},
	}}
	router := newTransfersRouter(manager)

	req := httptest.NewRequest(http.MethodDelete, "/api/transfers/t4?deleteFiles=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(manager.removed) != 1 {
		t.Fatalf("expected one remove call, got %d", len(manager.removed))
	}
}

func TestDeleteTransferNotRemovableReturnsConflict(t *testing.T) {
	manager := &stubManager{
		transfers: map[string]models.Transfer{
			"t5": {ID: "t5", State: models.TransferDenied},
		},
		removeErr: transfers.ErrTransferNotRemovable,
	}
	router := newTransfersRouter(manager)

	req := httptest.NewRequest(http.MethodDelete, "/api/transfers/t5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a non-removable transfer, got %d", rec.Code)
	}
}
