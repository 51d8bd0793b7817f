package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"tunnelarr/config"
)

type SettingsHandler struct {
	Manager  *config.Manager
	OnUpdate func(config.Settings)
}

func NewSettingsHandler(manager *config.Manager, onUpdate func(config.Settings)) *SettingsHandler {
	return &SettingsHandler{Manager: manager, OnUpdate: onUpdate}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Manager.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}

	if err := h.Manager.Save(settings); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.OnUpdate != nil {
		h.OnUpdate(settings)
	}
	log.Printf("[handlers] settings updated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}
