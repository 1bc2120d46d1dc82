package mailbox

import "github.com/Iron-Ham/conductor/internal/event"

// newMessageFailedEvent creates an event.MessageFailedEvent from a Message.
func newMessageFailedEvent(msg Message, reason string) event.MessageFailedEvent {
	return event.NewMessageFailedEvent(msg.ID, msg.From, msg.To, string(msg.Kind), reason)
}

// newHandoffExpiredEvent creates an event.HandoffExpiredEvent from a Handoff.
func newHandoffExpiredEvent(h Handoff) event.HandoffExpiredEvent {
	return event.NewHandoffExpiredEvent(h.ID, h.Task.ID, h.From, h.To)
}
