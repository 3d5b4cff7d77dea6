// Package httpapi exposes the tasker's operational surface — /healthz and
// /metrics only. The attempt/test/user CRUD API is a separate, out-of-scope
// HTTP service and has no routes here.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klntsky/compression-bench/internal/store"
	"github.com/klntsky/compression-bench/internal/tasker"
	"github.com/klntsky/compression-bench/internal/version"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is the JSON body returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult is one named subsystem's health.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// DB is the subset of *store.Postgres the server depends on.
type DB interface {
	Health(ctx context.Context) (*store.HealthStatus, error)
}

// Server is the gin-backed healthz/metrics surface.
type Server struct {
	engine *gin.Engine
	db     DB
	runner *tasker.Runner
}

// New builds a Server. db and runner may be nil in tests that only
// exercise routing. registry is the prometheus.Registry metrics.Tasker
// was constructed with.
func New(db DB, runner *tasker.Runner, registry *prometheus.Registry) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, db: db, runner: runner}
	engine.GET("/healthz", s.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckResult{}
	status := statusHealthy

	if s.db != nil {
		if dbStatus, err := s.db.Health(ctx); err != nil {
			status = statusUnhealthy
			checks["database"] = CheckResult{Status: statusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = CheckResult{Status: dbStatus.Status}
		}
	}

	if s.runner != nil {
		health := s.runner.Health()
		if !health.IsHealthy {
			if status == statusHealthy {
				status = statusDegraded
			}
			checks["tasker"] = CheckResult{Status: statusDegraded}
		} else {
			checks["tasker"] = CheckResult{Status: statusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == statusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{Status: status, Version: version.Full(), Checks: checks})
}
