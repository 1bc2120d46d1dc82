package mailbox

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
)

const (
	defaultHandoffTTL    = 5 * time.Minute
	defaultShareTTL      = 10 * time.Minute
	defaultSweepInterval = 30 * time.Second
	defaultHistoryLimit  = 200
)

// Bus is the in-process communication channel between workers. It supports
// targeted and broadcast messages, correlated request/response, two-phase
// task handoff, and short-lived data sharing.
//
// Handlers run asynchronously; Send never blocks on a recipient.
type Bus struct {
	mu       sync.Mutex
	handlers map[string]Handler
	waiters  map[string]chan Message // request ID -> reply channel
	handoffs map[string]*Handoff
	shares   map[string]*SharedData
	history  []Message
	stats    Stats

	events        *event.Bus
	logger        *logging.Logger
	now           func() time.Time
	handoffTTL    time.Duration
	shareTTL      time.Duration
	sweepInterval time.Duration
	historyLimit  int

	inflight sync.WaitGroup
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers:      make(map[string]Handler),
		waiters:       make(map[string]chan Message),
		handoffs:      make(map[string]*Handoff),
		shares:        make(map[string]*SharedData),
		stats:         Stats{ByKind: make(map[Kind]int)},
		logger:        logging.NopLogger(),
		now:           time.Now,
		handoffTTL:    defaultHandoffTTL,
		shareTTL:      defaultShareTTL,
		sweepInterval: defaultSweepInterval,
		historyLimit:  defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("bus")
	return b
}

// RegisterHandler installs the handler for workerID, replacing any previous one.
func (b *Bus) RegisterHandler(workerID string, h Handler) error {
	if workerID == "" || workerID == BroadcastRecipient {
		return errors.NewValidationError("invalid worker id").WithField("worker_id").WithValue(workerID)
	}
	if h == nil {
		return errors.NewValidationError("handler is required").WithField("handler")
	}

	b.mu.Lock()
	b.handlers[workerID] = h
	b.mu.Unlock()
	return nil
}

// UnregisterHandler removes the handler for workerID.
func (b *Bus) UnregisterHandler(workerID string) {
	b.mu.Lock()
	delete(b.handlers, workerID)
	b.mu.Unlock()
}

// HasHandler reports whether workerID can receive messages.
func (b *Bus) HasHandler(workerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[workerID]
	return ok
}

// Send delivers a message. It fills in ID and Timestamp when empty and
// returns the message ID. Delivery is asynchronous: an unregistered
// recipient is recorded as a delivery failure, not returned as an error.
// Errors are returned only for malformed messages.
//
// A message addressed to BroadcastRecipient is fanned out like Broadcast.
// A KindResponse whose CorrelationID matches a pending Request is routed to
// the waiting caller instead of the recipient's handler.
func (b *Bus) Send(msg Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}
	msg = b.stamp(msg)

	if msg.IsBroadcast() {
		b.fanOut(msg)
		return msg.ID, nil
	}

	b.mu.Lock()
	b.record(msg)

	if msg.Kind == KindResponse && msg.CorrelationID != "" {
		if ch, ok := b.waiters[msg.CorrelationID]; ok {
			delete(b.waiters, msg.CorrelationID)
			b.stats.Delivered++
			b.mu.Unlock()
			ch <- msg
			return msg.ID, nil
		}
	}

	h, ok := b.handlers[msg.To]
	if !ok {
		b.stats.Failed++
		b.mu.Unlock()
		b.deliveryFailed(msg, "recipient not registered")
		return msg.ID, nil
	}
	b.stats.Delivered++
	b.mu.Unlock()

	b.dispatch(h, msg)
	return msg.ID, nil
}

// Broadcast sends subject and data from senderID to every registered
// handler except the sender. It returns the number of recipients.
func (b *Bus) Broadcast(senderID, subject string, data map[string]any) (int, error) {
	msg := Message{
		From:    senderID,
		To:      BroadcastRecipient,
		Kind:    KindStatusUpdate,
		Subject: subject,
		Payload: data,
	}
	if err := validate(msg); err != nil {
		return 0, err
	}
	return b.fanOut(b.stamp(msg)), nil
}

// fanOut delivers msg to every handler except the sender's.
func (b *Bus) fanOut(msg Message) int {
	b.mu.Lock()
	b.record(msg)
	type target struct {
		id string
		h  Handler
	}
	var targets []target
	for _, id := range slices.Sorted(maps.Keys(b.handlers)) {
		if id == msg.From {
			continue
		}
		targets = append(targets, target{id: id, h: b.handlers[id]})
	}
	b.stats.Delivered += len(targets)
	b.mu.Unlock()

	for _, t := range targets {
		copyMsg := msg
		copyMsg.To = t.id
		b.dispatch(t.h, copyMsg)
	}
	return len(targets)
}

// Request sends a KindRequest and waits for the correlated KindResponse.
// The wait is bounded by ctx. An unregistered recipient fails immediately
// with ErrRecipientNotRegistered.
func (b *Bus) Request(ctx context.Context, msg Message) (Message, error) {
	msg.Kind = KindRequest
	if msg.IsBroadcast() {
		return Message{}, errors.NewValidationError("requests cannot be broadcast").WithField("to")
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	msg = b.stamp(msg)

	if !b.HasHandler(msg.To) {
		b.mu.Lock()
		b.record(msg)
		b.stats.Failed++
		b.mu.Unlock()
		b.deliveryFailed(msg, "recipient not registered")
		return Message{}, fmt.Errorf("request to %s: %w", msg.To, errors.ErrRecipientNotRegistered)
	}

	ch := make(chan Message, 1)
	b.mu.Lock()
	b.waiters[msg.ID] = ch
	b.mu.Unlock()

	if _, err := b.Send(msg); err != nil {
		b.dropWaiter(msg.ID)
		return Message{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		b.dropWaiter(msg.ID)
		return Message{}, fmt.Errorf("request %s to %s: %w", msg.ID, msg.To, ctx.Err())
	}
}

// Reply answers a request received by a handler.
func (b *Bus) Reply(request Message, payload map[string]any) (string, error) {
	if request.Kind != KindRequest {
		return "", errors.NewValidationError("can only reply to requests").WithField("kind").WithValue(request.Kind)
	}
	return b.Send(Message{
		From:          request.To,
		To:            request.From,
		Kind:          KindResponse,
		Subject:       request.Subject,
		Payload:       payload,
		CorrelationID: request.ID,
	})
}

func (b *Bus) dropWaiter(id string) {
	b.mu.Lock()
	delete(b.waiters, id)
	b.mu.Unlock()
}

// Stats returns a snapshot of the diagnostic counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.ByKind = maps.Clone(b.stats.ByKind)
	s.ActiveHandoffs = len(b.handoffs)
	s.ActiveShares = len(b.shares)
	s.PendingRequests = len(b.waiters)
	s.Handlers = len(b.handlers)
	return s
}

// History returns recent messages sent by or addressed to workerID, oldest
// first. Broadcasts are included for every worker. An empty workerID
// returns the whole log.
func (b *Bus) History(workerID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.history {
		if workerID == "" || m.From == workerID || m.To == workerID || m.IsBroadcast() {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

// Wait blocks until every in-flight handler call has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// Run sweeps expired handoffs and shares every sweep interval until ctx is
// canceled.
func (b *Bus) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.safeSweep()
		}
	}
}

func (b *Bus) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("sweep panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	b.Sweep(b.now())
}

// Sweep discards handoffs and shares that expired at or before now. It
// returns how many of each were removed.
func (b *Bus) Sweep(now time.Time) (handoffs, shares int) {
	b.mu.Lock()
	var expired []Handoff
	for id, h := range b.handoffs {
		if !now.Before(h.ExpiresAt) {
			expired = append(expired, *h)
			delete(b.handoffs, id)
		}
	}
	for id, s := range b.shares {
		if !now.Before(s.ExpiresAt) {
			delete(b.shares, id)
			shares++
		}
	}
	b.stats.ExpiredHandoffs += len(expired)
	b.mu.Unlock()

	for _, h := range expired {
		b.logger.Info("handoff expired", "handoff_id", h.ID, "task_id", h.Task.ID, "from", h.From, "to", h.To)
		if b.events != nil {
			b.events.Publish(newHandoffExpiredEvent(h))
		}
	}
	return len(expired), shares
}

// dispatch runs h on its own goroutine with a recover boundary.
func (b *Bus) dispatch(h Handler, msg Message) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.mu.Lock()
				b.stats.HandlerPanics++
				b.mu.Unlock()
				b.logger.Error("message handler panicked",
					"message_id", msg.ID,
					"to", msg.To,
					"kind", string(msg.Kind),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
			}
		}()
		h(cloneMessage(msg))
	}()
}

func (b *Bus) deliveryFailed(msg Message, reason string) {
	b.logger.Warn("message delivery failed",
		"message_id", msg.ID,
		"from", msg.From,
		"to", msg.To,
		"kind", string(msg.Kind),
		"reason", reason)
	if b.events != nil {
		b.events.Publish(newMessageFailedEvent(msg, reason))
	}
}

// stamp assigns ID and Timestamp when unset.
func (b *Bus) stamp(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	return msg
}

// record counts and logs a message. Caller holds b.mu.
func (b *Bus) record(msg Message) {
	b.stats.Sent++
	b.stats.ByKind[msg.Kind]++
	if b.historyLimit == 0 {
		return
	}
	b.history = append(b.history, cloneMessage(msg))
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = slices.Delete(b.history, 0, over)
	}
}

func validate(msg Message) error {
	if msg.From == "" {
		return errors.NewValidationError("message from is required").WithField("from")
	}
	if msg.To == "" {
		return errors.NewValidationError("message to is required").WithField("to")
	}
	if !msg.Kind.Valid() {
		return errors.NewValidationError("unknown message kind").WithField("kind").WithValue(msg.Kind)
	}
	return nil
}

func cloneMessage(m Message) Message {
	m.Payload = maps.Clone(m.Payload)
	return m
}
