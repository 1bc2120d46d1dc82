// Package mailbox is the communication bus between workers.
//
// Workers usually receive work from the coordinator, but sometimes one
// worker needs to talk to another directly: to hand a task to a specific
// peer, to publish an intermediate artifact, to report progress, or to ask a
// question and wait for the answer. The [Bus] covers all of these.
//
// # Message Kinds
//
// The set of kinds is closed and every message goes through a single typed
// [Handler] per worker:
//
//   - [KindTaskHandoff]: a task offered to a specific peer
//   - [KindDataShare]: a shared artifact is available
//   - [KindStatusUpdate]: progress or broadcast notices
//   - [KindRequest] / [KindResponse]: correlated request and reply
//
// # Delivery
//
// Send is fire-and-forget. The recipient's handler runs on its own
// goroutine. A message to a worker with no handler is counted as a failed
// delivery, logged, and published as an event; the sender is not told.
//
// # Handoff and Sharing
//
// Handoffs are two-phase: [Bus.ProposeHandoff] parks the task and notifies
// the recipient, who pulls it with [Bus.AcceptHandoff]. Unaccepted handoffs
// expire. [Bus.ShareData] retains an artifact briefly and notifies every
// other worker. [Bus.Run] sweeps both.
//
// # Basic Usage
//
//	bus := mailbox.New(mailbox.WithEventBus(events), mailbox.WithLogger(logger))
//
//	_ = bus.RegisterHandler("analyst-1", func(msg mailbox.Message) {
//	    if msg.Kind == mailbox.KindRequest {
//	        _, _ = bus.Reply(msg, map[string]any{"reach": 1200})
//	    }
//	})
//
//	reply, err := bus.Request(ctx, mailbox.Message{
//	    From: "strategist-1", To: "analyst-1", Subject: "weekly reach",
//	})
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. No lock is held while a handler runs.
package mailbox
