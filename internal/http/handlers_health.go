package http

import (
	"context"
	"net/http"
	"time"
)

// handleHealth reports liveness. It never touches storage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Field("status", "ok").
		Field("timestamp", time.Now().UTC().Format(time.RFC3339)).
		Field("uptime", time.Since(s.startedAt).Round(time.Second).String()).
		Write(w)
}

// handleReady performs a readiness check against storage.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"storage": "ok"}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	metrics := s.tracer.GetMetrics()
	NewJSONResponse().
		Status(httpStatus).
		Field("success", httpStatus == http.StatusOK).
		Field("status", status).
		Field("checks", checks).
		Field("requests", map[string]int64{
			"total":         metrics.TotalRequests,
			"server_errors": metrics.ServerErrors,
			"rate_limited":  s.rateLimiter.Hits(),
			"suspicious":    s.detector.SuspiciousCount(),
		}).
		Write(w)
}
