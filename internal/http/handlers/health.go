package handlers

import (
	"net/http"
	"time"

	"github.com/imissapixel/ai-media-gen/internal/middleware"
)

// Health reports liveness. The authenticated flag reflects cookie presence
// only; validation happens on the protected routes.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	_, err := r.Cookie(middleware.CookieName)
	a.json(w, http.StatusOK, map[string]any{
		"status":        "OK",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"authenticated": err == nil,
	})
}
