package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tempkey-core/internal/replication"
)

// livenessText is the body served at "/".
const livenessText = "Bot is running!"

// componentCheckTimeout bounds each component check in /api/v1/health.
const componentCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w, "method not allowed")
	})

	r.Get("/", s.handleLiveness)
	r.Head("/", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Records     int               `json:"records"`
	Replication ReplicationStatus `json:"replication"`
	Components  map[string]string `json:"components,omitempty"`
}

// ReplicationStatus summarises the most recent replication attempt.
type ReplicationStatus struct {
	Status string     `json:"status"`
	Sink   string     `json:"sink,omitempty"`
	Digest string     `json:"digest,omitempty"`
	Error  string     `json:"error,omitempty"`
	At     *time.Time `json:"at,omitempty"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(livenessText))
}

// handleHealth reports "degraded" when the last replication failed or a
// component check fails; the bot still serves commands in that state so the
// status code stays 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	last := s.status.LastReplication()

	resp := HealthResponse{
		Status:      "ok",
		Version:     s.version,
		Records:     s.status.Count(),
		Replication: replicationStatus(last),
	}
	if last.Failed() {
		resp.Status = "degraded"
	}

	if len(s.components) > 0 {
		resp.Components = make(map[string]string, len(s.components))
		for name, checker := range s.components {
			ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
			err := checker.HealthCheck(ctx)
			cancel()

			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				s.logger.Warn("health component check failed", "component", name, "error", err)
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func replicationStatus(r replication.Result) ReplicationStatus {
	out := ReplicationStatus{
		Status: string(r.Status),
		Sink:   r.Sink,
		Digest: r.Digest,
		Error:  r.Error(),
	}
	if out.Status == "" {
		out.Status = "pending"
	}
	if !r.At.IsZero() {
		at := r.At.UTC()
		out.At = &at
	}
	return out
}
