package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/mailbox"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// maxStderr bounds how much stderr is kept in an error message.
const maxStderr = 2048

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args []string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr] + "..."
		}
		if msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// CLIWorker is a worker.Worker that answers every task with a one-shot run
// of an AI command-line agent.
type CLIWorker struct {
	id      string
	caps    worker.Capabilities
	backend Backend
	run     Runner
	mailbox *mailbox.Bus
	logger  *logging.Logger
	lookup  func(string) (string, error)
}

// WorkerOption configures a CLIWorker.
type WorkerOption func(*CLIWorker)

// WithRunner replaces ExecRunner.
func WithRunner(r Runner) WorkerOption {
	return func(w *CLIWorker) { w.run = r }
}

// WithMailbox adds the worker's recent bus messages to every prompt.
func WithMailbox(b *mailbox.Bus) WorkerOption {
	return func(w *CLIWorker) { w.mailbox = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) WorkerOption {
	return func(w *CLIWorker) { w.logger = l }
}

// WithLookPath replaces exec.LookPath for the Start check.
func WithLookPath(fn func(string) (string, error)) WorkerOption {
	return func(w *CLIWorker) { w.lookup = fn }
}

// NewCLIWorker creates a worker of type t backed by backend.
func NewCLIWorker(id string, t worker.Type, capabilities []string, backend Backend, opts ...WorkerOption) *CLIWorker {
	w := &CLIWorker{
		id:      id,
		caps:    worker.Capabilities{Type: t, Capabilities: capabilities},
		backend: backend,
		run:     ExecRunner,
		logger:  logging.NopLogger(),
		lookup:  exec.LookPath,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithWorker(id).With("backend", string(backend.Name()))
	return w
}

func (w *CLIWorker) ID() string                        { return w.id }
func (w *CLIWorker) Capabilities() worker.Capabilities { return w.caps }

// Start checks that the backend executable is on PATH.
func (w *CLIWorker) Start(context.Context) error {
	name, _ := w.backend.Command("")
	if _, err := w.lookup(name); err != nil {
		return fmt.Errorf("%s backend unavailable: %w", w.backend.DisplayName(), err)
	}
	w.logger.Info("ai worker started", "command", name)
	return nil
}

// Stop is a no-op. In-flight runs end with their context.
func (w *CLIWorker) Stop(context.Context) error { return nil }

// Execute builds a prompt from the task and returns the agent's answer.
func (w *CLIWorker) Execute(ctx context.Context, t task.Task) (task.Result, error) {
	var messages string
	if w.mailbox != nil {
		messages = mailbox.FormatForPrompt(w.mailbox.History(w.id))
	}
	prompt, err := BuildPrompt(w.caps.Type, t, messages)
	if err != nil {
		return task.Result{}, errors.NewWorkerError("build prompt", err).
			WithTaskID(t.ID).
			WithWorker(w.id, string(w.caps.Type)).
			WithRetryable(false)
	}

	name, args := w.backend.Command(prompt)
	w.logger.Debug("running agent", "task_id", t.ID, "command", name, "prompt_bytes", len(prompt))

	out, err := w.run(ctx, name, args)
	if err != nil {
		if ctx.Err() != nil {
			return task.Result{}, ctx.Err()
		}
		return task.Result{}, errors.NewWorkerError("agent run failed", err).
			WithTaskID(t.ID).
			WithWorker(w.id, string(w.caps.Type))
	}

	output := ParseOutput(out)
	output["backend"] = string(w.backend.Name())
	return task.Result{Output: output}, nil
}
