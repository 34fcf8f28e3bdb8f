// Package api exposes the HTTP interface for triggering and inspecting runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/pipeline"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
	"github.com/JakeFAU/profile-aggregator/internal/telemetry"
)

const requestTimeout = 2 * time.Minute

// Runner executes one aggregation run.
type Runner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the pipeline and the run store.
type Server struct {
	router chi.Router
	runner Runner
	runs   profile.RunReader
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner Runner,
	runs profile.RunReader,
	cfg config.ServerConfig,
	logger *zap.Logger,
	checks map[string]ReadinessCheck,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		runs:   runs,
		checks: checks,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/runs", s.triggerRun)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.Run(r.Context())
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if result.RunID == "" {
		// The run never started, e.g. id generation failed.
		s.logger.Error("run could not start", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "run could not start")
		return
	}

	status := http.StatusCreated
	switch result.Outcome {
	case profile.OutcomeAborted:
		status = http.StatusBadGateway
	case profile.OutcomeFailed:
		status = http.StatusInternalServerError
	}
	// The aggregate carries card data; it only leaves through delivery or
	// the fallback file.
	result.Aggregate = nil
	s.writeJSON(w, status, runResponse{RunResult: result, Status: result.StatusLine()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	record, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, profile.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": record})
}

type runResponse struct {
	pipeline.RunResult
	Status string `json:"status"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
