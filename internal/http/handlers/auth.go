package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/imissapixel/ai-media-gen/internal/middleware"
)

type loginRequest struct {
	Password string `json:"password"`
}

// Login verifies the shared password and issues the session cookie. The rate
// limiter runs before anything else and counts every request, so a lockout
// cannot be probed past with malformed bodies.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	ip := middleware.ClientIP(r)
	if retryAfter, ok := a.Limiter.Check(ip); !ok {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		minutes := int(math.Ceil(retryAfter.Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		a.Logger.Warn().Str("ip", ip).Msg("login rate limit hit")
		a.json(w, http.StatusTooManyRequests, map[string]any{
			"success":    false,
			"message":    fmt.Sprintf("Too many login attempts. Try again in %d minutes.", minutes),
			"retryAfter": seconds,
		})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		a.fail(w, http.StatusBadRequest, "Password is required")
		return
	}

	if !a.Credentials.Verify(req.Password) {
		event := a.Logger.Warn().Str("ip", ip)
		if a.Geo != nil {
			if country, err := a.Geo.CountryCode(ip); err == nil && country != "" {
				event = event.Str("country", country)
			}
		}
		event.Int("attempts", a.Limiter.Attempts(ip)).Msg("failed login attempt")
		a.fail(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	a.Limiter.Reset(ip)
	http.SetCookie(w, a.sessionCookie(a.Tokens.Token(), 365*24*time.Hour))
	a.Logger.Info().Str("ip", ip).Msg("successful login")
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Authentication successful",
	})
}

// Logout clears the session cookie. Always succeeds, authenticated or not.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	cookie := a.sessionCookie("", 0)
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (a *App) sessionCookie(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.Config.Production(),
		SameSite: http.SameSiteStrictMode,
	}
}
