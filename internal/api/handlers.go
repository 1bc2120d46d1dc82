package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Iron-Ham/conductor/internal/coordination"
	"github.com/Iron-Ham/conductor/internal/coordinator"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/mailbox"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
	"github.com/Iron-Ham/conductor/internal/workflow"
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Summary     coordination.Summary `json:"summary"`
	Metrics     coordinator.Metrics  `json:"metrics"`
	Workers     []worker.Info        `json:"workers"`
	Active      []task.Task          `json:"active"`
	Recent      []task.Task          `json:"recent"`
	Executions  []workflow.Execution `json:"executions"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// SubmitTaskRequest is the body of POST /api/v1/tasks.
type SubmitTaskRequest struct {
	WorkerType string         `json:"worker_type"`
	TenantID   string         `json:"tenant_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	// Priority is a band name. Empty means medium.
	Priority string            `json:"priority,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// IDResponse is returned by every create endpoint.
type IDResponse struct {
	ID string `json:"id"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.hub.Running(),
	})
}

// status returns a snapshot of the whole hub
// (GET /api/v1/status)
func (s *Server) status(c echo.Context) error {
	coord := s.hub.Coordinator()

	recent := coord.History()
	if len(recent) > s.recentLimit {
		recent = recent[len(recent)-s.recentLimit:]
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Summary:     s.hub.Summary(),
		Metrics:     coord.Metrics(),
		Workers:     coord.Workers(),
		Active:      coord.Tasks(),
		Recent:      recent,
		Executions:  s.hub.Workflows().List(workflow.Filter{Status: workflow.StatusRunning}),
		GeneratedAt: time.Now(),
	})
}

// submitTask routes a new task to a worker
// (POST /api/v1/tasks)
func (s *Server) submitTask(c echo.Context) error {
	var req SubmitTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body", err)
	}
	priority, err := task.ParsePriority(req.Priority)
	if err != nil {
		return errors.NewValidationError("invalid priority").WithField("priority").WithValue(req.Priority).WithCause(err)
	}

	id, err := s.hub.Coordinator().Submit(c.Request().Context(), task.Task{
		WorkerType: req.WorkerType,
		TenantID:   req.TenantID,
		Payload:    req.Payload,
		Priority:   priority,
		Origin:     task.OriginManual,
		Labels:     req.Labels,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: id})
}

// listTasks returns active tasks, or the retained history with ?history=true
// (GET /api/v1/tasks)
func (s *Server) listTasks(c echo.Context) error {
	if history, _ := strconv.ParseBool(c.QueryParam("history")); history {
		return c.JSON(http.StatusOK, s.hub.Coordinator().History())
	}
	return c.JSON(http.StatusOK, s.hub.Coordinator().Tasks())
}

// getTask returns one task, active or finished
// (GET /api/v1/tasks/:id)
func (s *Server) getTask(c echo.Context) error {
	id := c.Param("id")
	t, ok := s.hub.Coordinator().Task(id)
	if !ok {
		return errors.NewNotFoundError("task", id).WithCause(errors.ErrTaskNotFound)
	}
	return c.JSON(http.StatusOK, t)
}

// cancelTask withdraws a task that has not been dispatched
// (DELETE /api/v1/tasks/:id)
func (s *Server) cancelTask(c echo.Context) error {
	t, err := s.hub.Coordinator().Cancel(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// (GET /api/v1/workers)
func (s *Server) listWorkers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Coordinator().Workers())
}

// sendMessage posts a message on the communication bus
// (POST /api/v1/messages)
func (s *Server) sendMessage(c echo.Context) error {
	var msg mailbox.Message
	if err := c.Bind(&msg); err != nil {
		return badRequest("invalid request body", err)
	}
	id, err := s.hub.Mailbox().Send(msg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: id})
}

// listMessages returns recent bus messages, filtered by ?worker=
// (GET /api/v1/messages)
func (s *Server) listMessages(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Mailbox().History(c.QueryParam("worker")))
}

// (GET /api/v1/bus/stats)
func (s *Server) busStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Mailbox().Stats())
}

// scalingAdvice returns the latest capacity decision per worker type. With
// ?refresh=true it evaluates now instead of waiting for the next tick.
// (GET /api/v1/scaling)
func (s *Server) scalingAdvice(c echo.Context) error {
	advisor := s.hub.Scaling()
	if c.QueryParam("refresh") == "true" {
		advisor.Tick(time.Now())
	}
	return c.JSON(http.StatusOK, advisor.Latest())
}
