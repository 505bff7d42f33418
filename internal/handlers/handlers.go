package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/donghua/internal/agents"
	"github.com/snappy-loop/donghua/internal/llm"
	"github.com/snappy-loop/donghua/internal/session"
)

// SessionStore holds live studio sessions.
type SessionStore interface {
	Create() *session.Session
	Get(id uuid.UUID) (*session.Session, bool)
}

// PreviewStore persists exported previews and returns a URL for them.
type PreviewStore interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string, contentLength int64) error
	ObjectURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	sessions    SessionStore
	agent       agents.CharacterAgent
	previews    PreviewStore // nil when export is not configured
	urlExpiry   time.Duration
	authEnabled bool
}

// NewHandler creates a new handler. previews may be nil.
func NewHandler(sessions SessionStore, agent agents.CharacterAgent, previews PreviewStore, urlExpiry time.Duration, authEnabled bool) *Handler {
	return &Handler{
		sessions:    sessions,
		agent:       agent,
		previews:    previews,
		urlExpiry:   urlExpiry,
		authEnabled: authEnabled,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// generationStatus maps a client error to an HTTP status.
func generationStatus(err error) int {
	var ge *llm.GenerationError
	switch {
	case errors.Is(err, llm.ErrValidation):
		return http.StatusBadRequest
	case errors.As(err, &ge) && ge.IsQuota():
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeGenerationError(w http.ResponseWriter, err error) {
	status := generationStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Generation failed")
	}
	writeJSONError(w, status, llm.Message(err))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
