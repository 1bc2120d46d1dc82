package worker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
)

// Type is the kind of work a worker performs.
type Type string

const (
	TypeStrategy   Type = "strategy"
	TypeContent    Type = "content"
	TypeEngagement Type = "engagement"
	TypeAnalytics  Type = "analytics"
	TypeCrisis     Type = "crisis"
	TypeScheduling Type = "scheduling"
	TypeResearch   Type = "research"
)

// Types returns every known worker type in a stable order.
func Types() []Type {
	return []Type{
		TypeStrategy, TypeContent, TypeEngagement, TypeAnalytics,
		TypeCrisis, TypeScheduling, TypeResearch,
	}
}

// Valid reports whether t is a known worker type.
func (t Type) Valid() bool {
	return slices.Contains(Types(), t)
}

// ParseType validates s as a worker type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown worker type %q", s)
	}
	return t, nil
}

// Capabilities describes what a worker can do.
type Capabilities struct {
	Type         Type     `json:"type"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Has reports whether capability c is declared.
func (c Capabilities) Has(capability string) bool {
	return slices.Contains(c.Capabilities, capability)
}

// Worker is the contract every task executor implements.
type Worker interface {
	// ID uniquely identifies the worker within the process.
	ID() string
	// Start prepares the worker to receive tasks.
	Start(ctx context.Context) error
	// Stop releases resources. Execute is not called after Stop.
	Stop(ctx context.Context) error
	// Capabilities reports the worker's type and declared capabilities.
	Capabilities() Capabilities
	// Execute runs one task. A returned error is a structured failure; a
	// panic is treated the same way by the coordinator. Execute must be
	// safe for concurrent use.
	Execute(ctx context.Context, t task.Task) (task.Result, error)
}

// Info is the registry's record of a worker.
type Info struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Capabilities []string  `json:"capabilities,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
	Active       bool      `json:"active"`
}

// HasCapability reports whether the worker declared capability c.
func (i Info) HasCapability(c string) bool {
	return slices.Contains(i.Capabilities, c)
}
