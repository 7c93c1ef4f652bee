// Package api implements the HTTP surface external clients use to create
// tasks, poll status and progress, abort execution, and read operational
// and analytics views over the rest of the core.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kindryd/askflash-mcp/pkg/adaptive"
	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/coordinator"
	"github.com/kindryd/askflash-mcp/pkg/metrics"
	"github.com/kindryd/askflash-mcp/pkg/state"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
	"github.com/kindryd/askflash-mcp/pkg/version"
)

// Server is the HTTP API server fronting the Coordinator, TaskStore,
// Broker, and (optionally) the StateManager and Metrics registry.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	coord           *coordinator.Coordinator
	store           *taskstore.Store
	brk             *broker.Broker
	state           *state.Manager // nil degrades analytics endpoints to ServiceUnavailable
	ad              *adaptive.Client
	defaultTemplate string
}

// Config configures the listener, CORS policy, and the template applied
// when a create-task request omits template_name.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	DefaultTemplate string
}

// NewServer wires an echo.Echo instance and registers every route. state
// and ad may be nil; analytics endpoints that depend on state report
// ServiceUnavailable when it is absent.
func NewServer(cfg Config, coord *coordinator.Coordinator, store *taskstore.Store, brk *broker.Broker, sm *state.Manager, ad *adaptive.Client, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.BodyLimit(1024 * 1024))
	e.Use(corsMiddleware(cfg.AllowedOrigins))

	s := &Server{
		echo:            e,
		coord:           coord,
		store:           store,
		brk:             brk,
		state:           sm,
		ad:              ad,
		defaultTemplate: cfg.DefaultTemplate,
	}
	s.setupRoutes(m)
	return s
}

func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.echo.GET("/health", s.healthHandler)
	if m != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.createTaskHandler)
	v1.GET("/tasks/:id", s.getStatusHandler)
	v1.GET("/tasks/:id/progress", s.getProgressHandler)
	v1.POST("/tasks/:id/abort", s.abortTaskHandler)
	v1.GET("/queues", s.queueStatusHandler)
	v1.GET("/system/status", s.systemStatusHandler)
	v1.GET("/analytics/tasks", s.taskAnalyticsHandler)
	v1.GET("/analytics/agents", s.agentAnalyticsHandler)
}

// healthHandler reports liveness only; operational depth lives behind
// system-status, which degrades gracefully on its own.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Full(),
	})
}

// Start starts the HTTP server on addr (non-blocking; call from a
// goroutine or follow with Shutdown on the caller's signal handling).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

const defaultAnalyticsWindow = 24 * time.Hour
