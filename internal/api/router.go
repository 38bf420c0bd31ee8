package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shsf-rail/shsf-hub/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/commands", s.handleSubmitCommand)
		r.Get("/exchanges", s.handleListExchanges)
	})

	r.Get("/ws", s.handleWebSocket)

	// Browser status page
	r.Handle("/*", panel.Handler(s.cfg.PanelDir))

	return r
}

// handleHealth returns the server health status. Any failing dependency
// check turns the answer into a 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}

	if failed := s.runChecks(r.Context()); len(failed) > 0 {
		body["status"] = "degraded"
		body["checks"] = failed
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// runChecks returns the error text of every failing check, keyed by name.
func (s *Server) runChecks(ctx context.Context) map[string]string {
	if len(s.checks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := make(map[string]string)
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}
