package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/task"
)

// Kind names what a record describes.
type Kind string

const (
	KindTask      Kind = "task"
	KindExecution Kind = "execution"
)

// Record is one archived entity. Body holds the JSON form of the task or
// execution as it was when it finished.
type Record struct {
	Kind       Kind            `json:"kind"`
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Status     string          `json:"status"`
	FinishedAt time.Time       `json:"finished_at"`
	Body       json.RawMessage `json:"body"`
}

// NewRecord marshals body into a Record.
func NewRecord(kind Kind, id, tenantID, status string, finishedAt time.Time, body any) (Record, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s %s: %w", kind, id, err)
	}
	return Record{
		Kind:       kind,
		ID:         id,
		TenantID:   tenantID,
		Status:     status,
		FinishedAt: finishedAt,
		Body:       data,
	}, nil
}

// TaskRecord builds the record for a terminal task.
func TaskRecord(t task.Task) (Record, error) {
	return NewRecord(KindTask, t.ID, t.TenantID, string(t.Status), t.FinishedAt, t)
}

// Sink receives terminal records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Write(context.Context, Record) error { return nil }
func (Nop) Close() error                        { return nil }

// Open builds the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ArchiveConfig, logger *logging.Logger) (Sink, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "log":
		return NewLogSink(logger), nil
	case "redis":
		return OpenRedis(ctx, cfg.Redis)
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
