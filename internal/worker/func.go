package worker

import (
	"context"

	"github.com/Iron-Ham/conductor/internal/task"
)

// ExecuteFunc is the body of a worker built with NewFunc.
type ExecuteFunc func(ctx context.Context, t task.Task) (task.Result, error)

// FuncWorker adapts a function to the Worker interface. Start and Stop are
// no-ops.
type FuncWorker struct {
	id   string
	caps Capabilities
	fn   ExecuteFunc
}

// NewFunc returns a Worker that runs fn for every task.
func NewFunc(id string, t Type, capabilities []string, fn ExecuteFunc) *FuncWorker {
	return &FuncWorker{
		id:   id,
		caps: Capabilities{Type: t, Capabilities: capabilities},
		fn:   fn,
	}
}

func (w *FuncWorker) ID() string                  { return w.id }
func (w *FuncWorker) Start(context.Context) error { return nil }
func (w *FuncWorker) Stop(context.Context) error  { return nil }
func (w *FuncWorker) Capabilities() Capabilities  { return w.caps }

// Execute calls the wrapped function.
func (w *FuncWorker) Execute(ctx context.Context, t task.Task) (task.Result, error) {
	return w.fn(ctx, t)
}
