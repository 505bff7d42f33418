package handlers

import (
	"github.com/gorilla/mux"
)

// NewRouter registers every route. authMW guards /api and /v1.
func NewRouter(h *Handler, authMW mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(AccessLog)
	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMW)
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/prompt", h.SubmitPrompt).Methods("POST")
	api.HandleFunc("/sessions/{id}/prompt.txt", h.DownloadPrompt).Methods("GET")
	api.HandleFunc("/sessions/{id}/image", h.RequestImage).Methods("POST")
	api.HandleFunc("/sessions/{id}/image", h.DismissImage).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/image.png", h.DownloadImage).Methods("GET")
	api.HandleFunc("/sessions/{id}/image/export", h.ExportImage).Methods("POST")
	api.HandleFunc("/sessions/{id}/ws", h.SessionWS).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(authMW)
	v1.HandleFunc("/prompts", h.GeneratePrompt).Methods("POST")
	v1.HandleFunc("/images", h.GenerateImage).Methods("POST")

	return r
}
