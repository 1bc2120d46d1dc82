package archive

import (
	"context"

	"github.com/Iron-Ham/conductor/internal/logging"
)

// LogSink writes each record as an info log line under the "archive"
// component. `conductor logs --component archive` reads them back.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger.WithComponent("archive")}
}

// Write logs r.
func (s *LogSink) Write(_ context.Context, r Record) error {
	s.logger.Info("archived",
		"kind", string(r.Kind),
		"id", r.ID,
		"tenant_id", r.TenantID,
		"status", r.Status,
		"finished_at", r.FinishedAt,
		"body", string(r.Body))
	return nil
}

// Close is a no-op; the logger is owned by the caller.
func (s *LogSink) Close() error { return nil }
