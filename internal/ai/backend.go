// Package ai runs tasks through a command-line LLM agent.
package ai

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/conductor/internal/config"
)

// BackendName identifies a supported AI backend.
type BackendName string

const (
	BackendClaude BackendName = "claude"
	BackendCodex  BackendName = "codex"
)

// Backend builds the one-shot command that answers a prompt.
type Backend interface {
	Name() BackendName
	DisplayName() string
	// Command returns the executable and arguments that print the answer to
	// prompt on stdout and exit.
	Command(prompt string) (string, []string)
}

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown AI backend")

// NewFromConfig builds the Backend a worker entry asks for.
func NewFromConfig(cfg config.WorkerConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case string(BackendClaude), "":
		return NewClaudeBackend(cfg.Command, cfg.Model), nil
	case string(BackendCodex):
		return NewCodexBackend(cfg.Command, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

// ClaudeBackend runs prompts with `claude --print`.
type ClaudeBackend struct {
	command string
	model   string
}

// NewClaudeBackend creates a Claude backend. An empty command means "claude".
func NewClaudeBackend(command, model string) *ClaudeBackend {
	if command == "" {
		command = "claude"
	}
	return &ClaudeBackend{command: command, model: model}
}

func (c *ClaudeBackend) Name() BackendName { return BackendClaude }

func (c *ClaudeBackend) DisplayName() string { return "Claude" }

func (c *ClaudeBackend) Command(prompt string) (string, []string) {
	args := []string{"--print"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return c.command, append(args, prompt)
}

// CodexBackend runs prompts with `codex exec`.
type CodexBackend struct {
	command string
	model   string
}

// NewCodexBackend creates a Codex backend. An empty command means "codex".
func NewCodexBackend(command, model string) *CodexBackend {
	if command == "" {
		command = "codex"
	}
	return &CodexBackend{command: command, model: model}
}

func (c *CodexBackend) Name() BackendName { return BackendCodex }

func (c *CodexBackend) DisplayName() string { return "Codex" }

func (c *CodexBackend) Command(prompt string) (string, []string) {
	args := []string{"exec", "--full-auto"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return c.command, append(args, prompt)
}
