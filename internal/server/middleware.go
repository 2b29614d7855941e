package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// apiAuthMiddleware validates API requests with bearer token.
func (s *Server) apiAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health is reachable without a token for liveness checks.
		if r.URL.Path == "/api/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		if status, msg := s.authenticate(r); status != http.StatusOK {
			writeError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate checks the bearer token and returns http.StatusOK when valid.
func (s *Server) authenticate(r *http.Request) (int, string) {
	if s.cfg.APIToken == "" {
		s.logger.Error().Msg("API request rejected: no API token configured")
		return http.StatusServiceUnavailable, "API authentication not configured"
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return http.StatusUnauthorized, "Authorization header required"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return http.StatusUnauthorized, "Bearer token required"
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Invalid API token")
		return http.StatusUnauthorized, "Invalid token"
	}
	return http.StatusOK, ""
}
