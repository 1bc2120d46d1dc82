package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var httpErr *echo.HTTPError
	var validation *errors.ValidationError
	var routing *errors.RoutingError
	var exists *errors.AlreadyExistsError

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.As(err, &validation), errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &routing), errors.Is(err, errors.ErrNoWorkerForType):
		return http.StatusUnprocessableEntity
	case errors.As(err, &exists),
		errors.Is(err, errors.ErrTaskRunning),
		errors.Is(err, errors.ErrTaskTerminal),
		errors.Is(err, errors.ErrExecutionNotRunning):
		return http.StatusConflict
	case errors.Is(err, errors.ErrCoordinatorStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			resp.Error = msg
		}
	}
	var validation *errors.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err.Error())
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		s.logger.Warn("writing error response failed", "error", err.Error())
	}
}

func badRequest(msg string, err error) error {
	if err != nil {
		msg += ": " + err.Error()
	}
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
