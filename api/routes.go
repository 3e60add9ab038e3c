package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/louiscrc/trakt-to-letterboxd/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the status API served in scheduled mode.
func NewRouter(syncHandler *handlers.SyncHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/status", syncHandler.GetStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history", syncHandler.GetHistory).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sync", syncHandler.TriggerSync).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return r
}
