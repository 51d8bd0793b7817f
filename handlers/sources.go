package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tunnelarr/models"
	"tunnelarr/services/registry"
)

type sourceCatalog interface {
	ListAll() []models.SourceEntry
	ListActive() []models.SourceEntry
	FindByName(name string) (models.SourceEntry, bool)
}

var _ sourceCatalog = (*registry.Service)(nil)

type SourcesHandler struct {
	Registry sourceCatalog
}

func NewSourcesHandler(reg sourceCatalog) *SourcesHandler {
	return &SourcesHandler{Registry: reg}
}

// List returns the source catalog. ?active=true filters out retired
// sources.
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	var entries []models.SourceEntry
	if r.URL.Query().Get("active") == "true" {
		entries = h.Registry.ListActive()
	} else {
		entries = h.Registry.ListAll()
	}
	if entries == nil {
		entries = []models.SourceEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// Get returns one catalog entry by name.
func (h *SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(mux.Vars(r)["name"])
	if name == "" {
		http.Error(w, "source name is required", http.StatusBadRequest)
		return
	}

	entry, ok := h.Registry.FindByName(name)
	if !ok {
		http.Error(w, "source not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}
