package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/imissapixel/ai-media-gen/internal/http/handlers"
	"github.com/imissapixel/ai-media-gen/internal/middleware"
)

// NewRouter assembles the full HTTP surface: public auth and health routes,
// the gated app shell and the cookie-guarded job API.
func NewRouter(app *handlers.App, cache *middleware.ResponseCache) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.Recover(app.Logger),
		middleware.Logger(app.Logger),
		middleware.Cache(cache),
	)

	r.Post("/login", app.Login)
	r.Post("/logout", app.Logout)
	r.Get("/health", app.Health)

	// Ungated assets, as installability checks run before login.
	r.Get("/manifest.json", app.Manifest)
	r.Get("/logo.svg", app.Logo)

	r.With(middleware.Gate(app.Tokens, http.HandlerFunc(app.LoginPage))).
		Get("/", app.Index)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Use(middleware.RequireAuth(app.Tokens))
		r.Post("/", app.JobsSubmit)
		r.Get("/", app.JobsActive)
		r.Post("/resume", app.JobsResume)
		r.Get("/events", app.JobsEvents)
		r.Get("/archive", app.JobsArchive)
		r.Get("/{id}", app.JobsGet)
		r.Get("/{id}/result", app.JobsResult)
	})

	r.NotFound(app.NotFound)
	return r
}
