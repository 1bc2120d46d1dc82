package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/rules"
	"github.com/Iron-Ham/conductor/internal/scheduler"
	"github.com/Iron-Ham/conductor/internal/threshold"
)

// RuleRequest is the body of POST /api/v1/rules. Durations use Go syntax
// ("30m", "1h").
type RuleRequest struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name"`
	Kind       rules.EventKind    `json:"kind"`
	Channels   []string           `json:"channels,omitempty"`
	Window     string             `json:"window,omitempty"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
	Direction  rules.Direction    `json:"direction,omitempty"`
	Actions    []rules.Action     `json:"actions"`
	Cooldown   string             `json:"cooldown,omitempty"`
}

func (r RuleRequest) rule() (rules.Rule, error) {
	window, err := parseDuration("window", r.Window)
	if err != nil {
		return rules.Rule{}, err
	}
	cooldown, err := parseDuration("cooldown", r.Cooldown)
	if err != nil {
		return rules.Rule{}, err
	}
	return rules.Rule{
		ID:   r.ID,
		Name: r.Name,
		Kind: r.Kind,
		Conditions: rules.Conditions{
			Channels:   r.Channels,
			Window:     window,
			Thresholds: r.Thresholds,
			Direction:  r.Direction,
		},
		Actions:  r.Actions,
		Cooldown: cooldown,
	}, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.NewValidationError("invalid duration").WithField(field).WithValue(raw).WithCause(err)
	}
	return d, nil
}

// RecordResponse is returned by POST /api/v1/metrics.
type RecordResponse struct {
	Recorded int `json:"recorded"`
}

// submitEvent queues a platform event for the rule engine
// (POST /api/v1/events)
func (s *Server) submitEvent(c echo.Context) error {
	var evt rules.Event
	if err := c.Bind(&evt); err != nil {
		return badRequest("invalid request body", err)
	}
	id, err := s.hub.Rules().SubmitEvent(evt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: id})
}

// listEvents returns processed events, newest last, capped by ?limit=
// (GET /api/v1/events)
func (s *Server) listEvents(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest("limit must be a non-negative integer", nil)
		}
		limit = n
	}
	return c.JSON(http.StatusOK, s.hub.Rules().Events(limit))
}

// recordMetrics feeds data points to the threshold monitor. Points before
// an invalid one are kept.
// (POST /api/v1/metrics)
func (s *Server) recordMetrics(c echo.Context) error {
	var points []threshold.DataPoint
	if err := c.Bind(&points); err != nil {
		return badRequest("invalid request body", err)
	}
	for i, dp := range points {
		if err := s.hub.Thresholds().RecordPoint(dp); err != nil {
			return errors.Wrapf(err, "point %d", i)
		}
	}
	return c.JSON(http.StatusAccepted, RecordResponse{Recorded: len(points)})
}

// (GET /api/v1/schedules)
func (s *Server) listSchedules(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Scheduler().List())
}

// (POST /api/v1/schedules)
func (s *Server) addSchedule(c echo.Context) error {
	var tpl scheduler.Template
	if err := c.Bind(&tpl); err != nil {
		return badRequest("invalid request body", err)
	}
	id, err := s.hub.Scheduler().AddTemplate(tpl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (s *Server) enableSchedule(c echo.Context) error {
	return s.toggled(c, s.hub.Scheduler().Enable(c.Param("id")))
}

func (s *Server) disableSchedule(c echo.Context) error {
	return s.toggled(c, s.hub.Scheduler().Disable(c.Param("id")))
}

func (s *Server) deleteSchedule(c echo.Context) error {
	return s.toggled(c, s.hub.Scheduler().Delete(c.Param("id")))
}

// runSchedule fires a template immediately without moving its NextRun
// (POST /api/v1/schedules/:id/run)
func (s *Server) runSchedule(c echo.Context) error {
	id, err := s.hub.Scheduler().RunNow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: id})
}

// (GET /api/v1/rules)
func (s *Server) listRules(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Rules().Rules())
}

// (POST /api/v1/rules)
func (s *Server) addRule(c echo.Context) error {
	var req RuleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body", err)
	}
	r, err := req.rule()
	if err != nil {
		return err
	}
	id, err := s.hub.Rules().AddRule(r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (s *Server) enableRule(c echo.Context) error {
	return s.toggled(c, s.hub.Rules().EnableRule(c.Param("id")))
}

func (s *Server) disableRule(c echo.Context) error {
	return s.toggled(c, s.hub.Rules().DisableRule(c.Param("id")))
}

func (s *Server) deleteRule(c echo.Context) error {
	return s.toggled(c, s.hub.Rules().DeleteRule(c.Param("id")))
}

// (GET /api/v1/thresholds)
func (s *Server) listThresholds(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Thresholds().Thresholds())
}

// (POST /api/v1/thresholds)
func (s *Server) addThreshold(c echo.Context) error {
	var th threshold.Threshold
	if err := c.Bind(&th); err != nil {
		return badRequest("invalid request body", err)
	}
	id, err := s.hub.Thresholds().AddThreshold(th)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (s *Server) enableThreshold(c echo.Context) error {
	return s.toggled(c, s.hub.Thresholds().EnableThreshold(c.Param("id")))
}

func (s *Server) disableThreshold(c echo.Context) error {
	return s.toggled(c, s.hub.Thresholds().DisableThreshold(c.Param("id")))
}

func (s *Server) deleteThreshold(c echo.Context) error {
	return s.toggled(c, s.hub.Thresholds().RemoveThreshold(c.Param("id")))
}

// toggled answers the enable, disable and delete routes, which have no body.
func (s *Server) toggled(c echo.Context, err error) error {
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
