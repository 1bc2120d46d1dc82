package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Iron-Ham/conductor/internal/workflow"
)

// ExecuteRequest is the body of POST /api/v1/workflows/:id/executions.
type ExecuteRequest struct {
	TenantID string         `json:"tenant_id"`
	Input    map[string]any `json:"input,omitempty"`
}

// defineWorkflow registers a workflow definition
// (POST /api/v1/workflows)
func (s *Server) defineWorkflow(c echo.Context) error {
	var def workflow.Definition
	if err := c.Bind(&def); err != nil {
		return badRequest("invalid request body", err)
	}
	id, err := s.hub.Workflows().Define(def)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

// (GET /api/v1/workflows)
func (s *Server) listWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Workflows().Definitions())
}

// executeWorkflow starts an execution of a definition. When the first step
// cannot be routed the execution still exists, already failed, and its ID
// is returned alongside the error.
// (POST /api/v1/workflows/:id/executions)
func (s *Server) executeWorkflow(c echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body", err)
	}

	id, err := s.hub.Workflows().Execute(c.Request().Context(), c.Param("id"), req.TenantID, req.Input)
	if err != nil {
		if id != "" {
			c.Response().Header().Set("X-Execution-ID", id)
		}
		return err
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: id})
}

// listExecutions filters by ?workflow=, ?tenant= and ?status=
// (GET /api/v1/executions)
func (s *Server) listExecutions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Workflows().List(workflow.Filter{
		DefinitionID: c.QueryParam("workflow"),
		TenantID:     c.QueryParam("tenant"),
		Status:       workflow.Status(c.QueryParam("status")),
	}))
}

// (GET /api/v1/executions/:id)
func (s *Server) getExecution(c echo.Context) error {
	exec, err := s.hub.Workflows().Status(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exec)
}

// (POST /api/v1/executions/:id/cancel)
func (s *Server) cancelExecution(c echo.Context) error {
	exec, err := s.hub.Workflows().Cancel(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exec)
}
