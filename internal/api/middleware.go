package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/assessment-engine/internal/auth"
)

// AuthMiddleware handles participant bearer token authentication
type AuthMiddleware struct {
	verifier *auth.Verifier
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(verifier *auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token from the Authorization header.
// Browsers cannot set headers on a WebSocket upgrade, so the access_token
// query parameter is accepted as well.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)

		identity, err := m.verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenMissing):
				writeAuthError(w, http.StatusUnauthorized, "missing token", "provide Authorization header with Bearer token")
			case errors.Is(err, auth.ErrTokenExpired):
				writeAuthError(w, http.StatusUnauthorized, "token expired", "the provided token has expired")
			default:
				slog.Warn("invalid token attempt", "remote_addr", r.RemoteAddr, "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid token", "the provided token is not valid")
			}
			return
		}

		slog.Debug("authenticated request", "participant", identity.ParticipantID)

		ctx := auth.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken extracts the bearer token from request headers or query
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.URL.Query().Get("access_token")
}

// AuthError represents an authentication error response
type AuthError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeAuthError writes JSON error response
func writeAuthError(w http.ResponseWriter, status int, error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AuthError{
		Error:   error,
		Message: message,
	})
}
