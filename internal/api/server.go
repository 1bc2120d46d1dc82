// Package api exposes a running coordination.Hub over HTTP.
//
// Every route lives under /api/v1 and speaks JSON. Domain errors are
// mapped to status codes by errorHandler.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Iron-Ham/conductor/internal/coordination"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// ServiceName is reported by the tracing middleware.
const ServiceName = "conductor"

// Server serves the HTTP surface of a Hub.
type Server struct {
	hub    *coordination.Hub
	logger *logging.Logger
	echo   *echo.Echo

	recentLimit int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRecentLimit caps how many finished tasks the status endpoint returns.
func WithRecentLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// NewServer builds the echo router for hub.
func NewServer(hub *coordination.Hub, opts ...Option) *Server {
	s := &Server{
		hub:         hub,
		logger:      logging.NopLogger(),
		recentLimit: 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("api")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(otelecho.Middleware(ServiceName))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"request_id", v.RequestID)
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	s.routes(e.Group("/api/v1"))

	s.echo = e
	return s
}

func (s *Server) routes(g *echo.Group) {
	g.GET("/status", s.status)

	g.POST("/tasks", s.submitTask)
	g.GET("/tasks", s.listTasks)
	g.GET("/tasks/:id", s.getTask)
	g.DELETE("/tasks/:id", s.cancelTask)
	g.GET("/workers", s.listWorkers)

	g.POST("/workflows", s.defineWorkflow)
	g.GET("/workflows", s.listWorkflows)
	g.POST("/workflows/:id/executions", s.executeWorkflow)
	g.GET("/executions", s.listExecutions)
	g.GET("/executions/:id", s.getExecution)
	g.POST("/executions/:id/cancel", s.cancelExecution)

	g.POST("/events", s.submitEvent)
	g.GET("/events", s.listEvents)
	g.POST("/metrics", s.recordMetrics)

	g.POST("/messages", s.sendMessage)
	g.GET("/messages", s.listMessages)
	g.GET("/bus/stats", s.busStats)
	g.GET("/scaling", s.scalingAdvice)

	g.GET("/schedules", s.listSchedules)
	g.POST("/schedules", s.addSchedule)
	g.POST("/schedules/:id/enable", s.enableSchedule)
	g.POST("/schedules/:id/disable", s.disableSchedule)
	g.POST("/schedules/:id/run", s.runSchedule)
	g.DELETE("/schedules/:id", s.deleteSchedule)

	g.GET("/rules", s.listRules)
	g.POST("/rules", s.addRule)
	g.POST("/rules/:id/enable", s.enableRule)
	g.POST("/rules/:id/disable", s.disableRule)
	g.DELETE("/rules/:id", s.deleteRule)

	g.GET("/thresholds", s.listThresholds)
	g.POST("/thresholds", s.addThreshold)
	g.POST("/thresholds/:id/enable", s.enableThreshold)
	g.POST("/thresholds/:id/disable", s.disableThreshold)
	g.DELETE("/thresholds/:id", s.deleteThreshold)
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "api server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "api shutdown")
	}
	s.logger.Info("api stopped")
	return nil
}
