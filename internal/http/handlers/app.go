package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/imissapixel/ai-media-gen/internal/auth"
	"github.com/imissapixel/ai-media-gen/internal/infra"
	"github.com/imissapixel/ai-media-gen/internal/infra/credentials"
	"github.com/imissapixel/ai-media-gen/internal/infra/geoip"
	"github.com/imissapixel/ai-media-gen/internal/jobs"
	"github.com/imissapixel/ai-media-gen/internal/storage"
)

// App bundles the dependencies handler methods need.
type App struct {
	Logger      infra.Logger
	Config      *infra.Config
	Credentials *credentials.Store
	Tokens      auth.Tokens
	Limiter     *auth.Limiter
	Queue       *jobs.Queue
	Store       *storage.FileStore
	Geo         geoip.CountryResolver
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]any{
		"success": false,
		"message": message,
	})
}

// NotFound replaces chi's plain-text 404 with the API's JSON envelope.
func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.fail(w, http.StatusNotFound, "Not found")
}
