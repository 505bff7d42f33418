package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// TokenQueryParam carries the access token for clients that cannot set
// headers, such as browser WebSocket connections.
const TokenQueryParam = "access_token"

var (
	ErrMissingToken = errors.New("missing access token")
	ErrInvalidToken = errors.New("invalid access token")
)

// Service checks bearer access tokens against a single bcrypt hash.
type Service struct {
	tokenHash []byte
}

// NewService creates an auth service. An empty hash disables authentication.
func NewService(tokenHash string) *Service {
	if tokenHash != "" {
		if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
			log.Error().Err(err).Msg("ACCESS_TOKEN_HASH is not a bcrypt hash; every request will be rejected")
		}
	}
	return &Service{tokenHash: []byte(tokenHash)}
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool {
	return len(s.tokenHash) > 0
}

// ValidateToken verifies token in constant time.
func (s *Service) ValidateToken(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// Middleware creates an authentication middleware. It is a pass-through when
// no token hash is configured.
func (s *Service) Middleware(next http.Handler) http.Handler {
	if !s.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := tokenFromRequest(r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := s.ValidateToken(token); err != nil {
			log.Debug().Str("path", r.URL.Path).Msg("Access token rejected")
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(TokenQueryParam); token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}
	if parts[1] == "" {
		return "", ErrMissingToken
	}
	return parts[1], nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
