package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/task"
)

func finishedTask() task.Task {
	return task.Task{
		ID:         "t-1",
		WorkerType: "analytics",
		TenantID:   "org1",
		Payload:    map[string]any{"report": "weekly"},
		Priority:   task.PriorityHigh,
		Origin:     task.OriginScheduled,
		Attempts:   1,
		Status:     task.StatusSucceeded,
		FinishedAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTaskRecord(t *testing.T) {
	r, err := TaskRecord(finishedTask())
	require.NoError(t, err)

	assert.Equal(t, KindTask, r.Kind)
	assert.Equal(t, "t-1", r.ID)
	assert.Equal(t, "org1", r.TenantID)
	assert.Equal(t, "succeeded", r.Status)

	var decoded task.Task
	require.NoError(t, json.Unmarshal(r.Body, &decoded))
	assert.Equal(t, task.PriorityHigh, decoded.Priority)
	assert.Equal(t, "weekly", decoded.Payload["report"])
}

func TestNewRecord_MarshalError(t *testing.T) {
	_, err := NewRecord(KindExecution, "e-1", "org1", "failed", time.Now(), map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logging.NewWriterLogger(&buf, "info"))

	r, err := TaskRecord(finishedTask())
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), r))
	require.NoError(t, sink.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "archived", line["msg"])
	assert.Equal(t, "archive", line["component"])
	assert.Equal(t, "t-1", line["id"])
	assert.Equal(t, "task", line["kind"])
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		driver  string
		want    any
		wantErr bool
	}{
		{driver: "", want: Nop{}},
		{driver: "none", want: Nop{}},
		{driver: "log", want: &LogSink{}},
		{driver: "s3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			sink, err := Open(ctx, config.ArchiveConfig{Driver: tt.driver}, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, sink)
			assert.NoError(t, sink.Write(ctx, Record{Kind: KindTask, ID: "x"}))
		})
	}
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := OpenRedis(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestOpenPostgres_BadDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), config.PostgresConfig{DSN: "::not a dsn::"})
	assert.Error(t, err)
}
