package handlers

import (
	"net/http"
	"os"
	"path/filepath"
)

// Built-in fallbacks keep the server usable when the static directory is
// absent, as in tests or a bare deployment.
const (
	fallbackIndex = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>AI Media Generator</title></head>
<body><h1>AI Media Generator</h1><p>The application shell was not found. Place the front end under the configured static directory.</p></body>
</html>
`
	fallbackLogin = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<form onsubmit="event.preventDefault();fetch('/login',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({password:document.getElementById('pw').value})}).then(function(r){if(r.ok)location.reload()})">
<input id="pw" type="password" autocomplete="current-password" placeholder="Password">
<button type="submit">Unlock</button>
</form>
</body>
</html>
`
	fallbackManifest = `{"name":"AI Media Generator","short_name":"MediaGen","start_url":"/","display":"standalone","icons":[{"src":"/logo.svg","sizes":"any","type":"image/svg+xml"}]}`
	fallbackLogo     = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><circle cx="12" cy="12" r="10" fill="#6c5ce7"/></svg>`
)

// Index serves the application shell. Reached only through the auth gate.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	a.serveStatic(w, r, "index.html", "text/html; charset=utf-8", fallbackIndex)
}

// LoginPage is the challenge surface the gate serves to unauthenticated
// visitors. Plain 200, never an error status.
func (a *App) LoginPage(w http.ResponseWriter, r *http.Request) {
	a.serveStatic(w, r, "login.html", "text/html; charset=utf-8", fallbackLogin)
}

// Manifest and Logo stay ungated so installability checks work pre-login.
func (a *App) Manifest(w http.ResponseWriter, r *http.Request) {
	a.serveStatic(w, r, "manifest.json", "application/manifest+json", fallbackManifest)
}

func (a *App) Logo(w http.ResponseWriter, r *http.Request) {
	a.serveStatic(w, r, "logo.svg", "image/svg+xml", fallbackLogo)
}

func (a *App) serveStatic(w http.ResponseWriter, r *http.Request, name, contentType, fallback string) {
	if a.Config != nil && a.Config.StaticDir != "" {
		full := filepath.Join(a.Config.StaticDir, name)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fallback))
}
