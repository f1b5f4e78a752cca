package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
)

// neverCached lists path fragments that must bypass the cache entirely,
// regardless of method or status. The job API carries live state and its
// event stream never terminates, so it is never cached either.
var neverCached = []string{"/login", "/logout", "/health", "/api/"}

type cacheEntry struct {
	status int
	header http.Header
	body   []byte
}

// ResponseCache is a generation-scoped cache of basic GET responses. It
// mirrors a client-side asset cache: entries belong to a named generation
// and activating a new generation purges every superseded one.
type ResponseCache struct {
	mu          sync.RWMutex
	current     string
	generations map[string]map[string]cacheEntry
}

// NewResponseCache creates a cache with the given active generation.
func NewResponseCache(generation string) *ResponseCache {
	c := &ResponseCache{generations: make(map[string]map[string]cacheEntry)}
	c.Activate(generation)
	return c
}

// Activate switches to the named generation and deletes all others.
func (c *ResponseCache) Activate(generation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.generations {
		if name != generation {
			delete(c.generations, name)
		}
	}
	if _, ok := c.generations[generation]; !ok {
		c.generations[generation] = make(map[string]cacheEntry)
	}
	c.current = generation
}

// Generation returns the active generation name.
func (c *ResponseCache) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *ResponseCache) get(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.generations[c.current][key]
	return entry, ok
}

func (c *ResponseCache) put(key string, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen, ok := c.generations[c.current]; ok {
		gen[key] = entry
	}
}

type cacheRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cr *cacheRecorder) WriteHeader(code int) {
	cr.status = code
	cr.ResponseWriter.WriteHeader(code)
}

func (cr *cacheRecorder) Write(p []byte) (int, error) {
	cr.buf.Write(p)
	return cr.ResponseWriter.Write(p)
}

func (cr *cacheRecorder) Flush() {
	if f, ok := cr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.NewResponseController reach the underlying connection.
func (cr *cacheRecorder) Unwrap() http.ResponseWriter {
	return cr.ResponseWriter
}

// Cache serves repeat GETs for static resources from memory. Responses are
// stored only when they are successful, carry a non-HTML content type and
// look like a plain body-bearing response; auth-sensitive paths are never
// touched.
func Cache(c *ResponseCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipCache(r.URL.Path) || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if entry, ok := c.get(key); ok {
				for k, vals := range entry.header {
					for _, v := range vals {
						w.Header().Add(k, v)
					}
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(entry.status)
				_, _ = w.Write(entry.body)
				return
			}

			rec := &cacheRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if !cacheable(rec.status, rec.Header().Get("Content-Type"), rec.buf.Len()) {
				return
			}
			c.put(key, cacheEntry{
				status: rec.status,
				header: rec.Header().Clone(),
				body:   append([]byte(nil), rec.buf.Bytes()...),
			})
		})
	}
}

func skipCache(path string) bool {
	for _, fragment := range neverCached {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

func cacheable(status int, contentType string, bodyLen int) bool {
	if status != http.StatusOK || bodyLen == 0 {
		return false
	}
	if contentType == "" || strings.Contains(contentType, "text/html") {
		return false
	}
	return true
}
