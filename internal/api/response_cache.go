package api

import (
	"net/http"
	"sync"
	"time"
)

// responseCache memoizes serialized JSON responses for the leaderboard
// endpoint, which fans out one PnL computation per registered user. The
// domain caches below it already dedupe upstream calls; this one just skips
// recomputing the ranking for identical queries in quick succession.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]*respCacheEntry
}

type respCacheEntry struct {
	body      []byte
	expiresAt time.Time
}

var apiCache = &responseCache{
	entries: make(map[string]*respCacheEntry),
}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) set(key string, body []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &respCacheEntry{
		body:      body,
		expiresAt: time.Now().Add(ttl),
	}
}

// cachedHandler wraps a handler and caches its successful JSON responses for
// ttl, keyed by path + query string.
func cachedHandler(ttl time.Duration, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "?" + r.URL.RawQuery

		if body, ok := apiCache.get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(body)
			return
		}

		rec := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		handler(rec, r)

		// Only cache successful responses
		if rec.statusCode >= 200 && rec.statusCode < 300 && len(rec.body) > 0 {
			apiCache.set(key, rec.body, ttl)
		}
	}
}

// responseRecorder captures the response body while still writing to the client.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
