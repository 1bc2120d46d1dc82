package mailbox

import (
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
)

// Kind identifies the kind of inter-worker message. The set is closed:
// Send rejects anything else.
type Kind string

const (
	// KindTaskHandoff offers a task to a specific peer.
	KindTaskHandoff Kind = "task_handoff"

	// KindDataShare announces a shared data artifact.
	KindDataShare Kind = "data_share"

	// KindStatusUpdate reports progress.
	KindStatusUpdate Kind = "status_update"

	// KindRequest asks a peer for something and expects a KindResponse.
	KindRequest Kind = "request"

	// KindResponse answers a KindRequest. CorrelationID carries the request ID.
	KindResponse Kind = "response"
)

// Kinds returns every message kind.
func Kinds() []Kind {
	return []Kind{KindTaskHandoff, KindDataShare, KindStatusUpdate, KindRequest, KindResponse}
}

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTaskHandoff, KindDataShare, KindStatusUpdate, KindRequest, KindResponse:
		return true
	}
	return false
}

// BroadcastRecipient is the special "to" value for messages intended for all workers.
const BroadcastRecipient = "broadcast"

// Message is a single inter-worker communication.
type Message struct {
	ID            string         `json:"id"`
	From          string         `json:"from"`
	To            string         `json:"to"`
	Kind          Kind           `json:"kind"`
	Subject       string         `json:"subject,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// IsBroadcast returns true if the message is addressed to all workers.
func (m Message) IsBroadcast() bool {
	return m.To == BroadcastRecipient
}

// Handler receives messages for one worker. It runs on its own goroutine.
type Handler func(Message)

// Handoff is a task offered by one worker to another, waiting to be pulled.
type Handoff struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Task       task.Task `json:"task"`
	ProposedAt time.Time `json:"proposed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SharedData is a named artifact published by a worker and retained briefly.
type SharedData struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	DataType  string         `json:"data_type"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SharedAt  time.Time      `json:"shared_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Stats are diagnostic counters. Nothing in the bus depends on them.
type Stats struct {
	Sent            int          `json:"sent"`
	Delivered       int          `json:"delivered"`
	Failed          int          `json:"failed"`
	HandlerPanics   int          `json:"handler_panics"`
	ActiveHandoffs  int          `json:"active_handoffs"`
	ExpiredHandoffs int          `json:"expired_handoffs"`
	ActiveShares    int          `json:"active_shares"`
	PendingRequests int          `json:"pending_requests"`
	Handlers        int          `json:"handlers"`
	ByKind          map[Kind]int `json:"by_kind"`
}
