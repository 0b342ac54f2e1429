package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

const defaultCheckTimeout = 3 * time.Second

// Checker reports whether one dependency is usable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name implements Checker.
func (f CheckFunc) Name() string { return f.Label }

// Check implements Checker.
func (f CheckFunc) Check(ctx context.Context) error { return f.Fn(ctx) }

// Server exposes liveness, readiness and metrics on a side port.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger
	checkers   []Checker
	timeout    time.Duration
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewServer creates a new health check server. checkers gate /ready.
func NewServer(port int, logger *zap.Logger, checkers ...Checker) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		mux:      mux,
		logger:   logger,
		checkers: checkers,
		timeout:  defaultCheckTimeout,
	}

	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)

	return server
}

// Handler returns the mux, for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler() {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting health check server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health check server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping health check server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{Status: "UP", Version: "1.0.0"})
}

type checkResult struct {
	name string
	err  error
}

// handleReady runs every checker concurrently and answers 503 if any fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	results := iter.Map(s.checkers, func(c *Checker) checkResult {
		return checkResult{name: (*c).Name(), err: (*c).Check(ctx)}
	})

	status := http.StatusOK
	resp := HealthResponse{
		Status:  "READY",
		Details: map[string]string{"timestamp": utils.FormatISO8601(utils.Now())},
	}
	for _, res := range results {
		if res.err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "NOT_READY"
			resp.Details[res.name] = res.err.Error()
			s.logger.Warn("Readiness check failed", zap.String("checker", res.name), zap.Error(res.err))
			continue
		}
		resp.Details[res.name] = "ok"
	}

	utils.WriteJSONResponse(w, status, resp)
}
