package api

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 4*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.ds.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":     "unhealthy",
			"datasource": s.ds.Name(),
			"timestamp":  now,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"datasource": s.ds.Name(),
		"timestamp":  now,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fillsCount, chCount := s.store.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                      "ok",
		"datasource":                  s.ds.Name(),
		"build_commit":                BuildCommit,
		"uptime_seconds":              int(time.Since(s.startedAt).Seconds()),
		"target_builder_set":          s.cfg.TargetBuilder != "",
		"registered_users":            s.registry.Len(),
		"fills_cache_entries":         fillsCount,
		"clearinghouse_cache_entries": chCount,
		"limiter_tokens":              s.limiter.Tokens(),
		"generated_at":                time.Now().UTC().Format(time.RFC3339),
	})
}
