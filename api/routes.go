package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"tunnelarr/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	searchHandler *handlers.SearchHandler,
	sourcesHandler *handlers.SourcesHandler,
	tunnelHandler *handlers.TunnelHandler,
	transfersHandler *handlers.TransfersHandler,
	settingsHandler *handlers.SettingsHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/search", searchHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/search", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/search/history", searchHandler.RecentSearches).Methods(http.MethodGet)
	api.HandleFunc("/search/history", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/search/backends", searchHandler.Backends).Methods(http.MethodGet)
	api.HandleFunc("/search/backends", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/sources", sourcesHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/sources", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/sources/{name}", sourcesHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/sources/{name}", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/tunnel/status", tunnelHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/tunnel/status", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/tunnel/wait", tunnelHandler.Wait).Methods(http.MethodPost)
	api.HandleFunc("/tunnel/wait", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/transfers", transfersHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/transfers", transfersHandler.Add).Methods(http.MethodPost)
	api.HandleFunc("/transfers", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/transfers/{id}", transfersHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id}", transfersHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/transfers/{id}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/transfers/{id}/pause", transfersHandler.Pause).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}/pause", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/transfers/{id}/resume", transfersHandler.Resume).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}/resume", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings", handleOptions).Methods(http.MethodOptions)
}
