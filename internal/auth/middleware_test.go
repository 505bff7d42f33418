package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashFor(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	return string(h)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	s := NewService("")
	if s.Enabled() {
		t.Fatal("empty hash should disable auth")
	}
	rec := httptest.NewRecorder()
	s.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	s := NewService(hashFor(t, "s3cret"))
	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no token", "/api/sessions", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/sessions", "Basic s3cret", http.StatusUnauthorized},
		{"empty bearer", "/api/sessions", "Bearer ", http.StatusUnauthorized},
		{"wrong token", "/api/sessions", "Bearer nope", http.StatusUnauthorized},
		{"valid header", "/api/sessions", "Bearer s3cret", http.StatusNoContent},
		{"lowercase scheme", "/api/sessions", "bearer s3cret", http.StatusNoContent},
		{"valid query", "/api/sessions/x/ws?access_token=s3cret", "", http.StatusNoContent},
		{"wrong query", "/api/sessions/x/ws?access_token=nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Middleware(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
