package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter assembles the auth API routes.
func NewRouter(h *Handlers, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(Logging(log))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	api.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)
	api.HandleFunc("/public-key", h.PublicKey).Methods(http.MethodGet)
	return r
}
