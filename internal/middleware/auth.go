package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/imissapixel/ai-media-gen/internal/auth"
)

// CookieName is the auth cookie issued on successful login.
const CookieName = "auth_token"

// Gate admits requests bearing a valid token cookie and serves the login
// surface otherwise. The challenge is a plain 200 response, never an error
// status, so the root path always renders something useful.
func Gate(tokens auth.Tokens, loginPage http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Authenticated(r, tokens) {
				next.ServeHTTP(w, r)
				return
			}
			loginPage.ServeHTTP(w, r)
		})
	}
}

// RequireAuth guards the JSON API with the same token check, responding 401
// instead of serving markup.
func RequireAuth(tokens auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Authenticated(r, tokens) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": "Authentication required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticated reports whether the request carries a cookie equal to the
// derived auth token.
func Authenticated(r *http.Request, tokens auth.Tokens) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return tokens.Valid(cookie.Value)
}
