// internal/handlers/utils.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/jason-s-yu/matchroom/internal/auth"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authenticate resolves the caller from a bearer token or the auth_token cookie.
func authenticate(r *http.Request) (int64, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		token = extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	}
	if token == "" {
		return 0, auth.ErrInvalidToken
	}
	return auth.AuthenticateJWT(token)
}
