package mailbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cerrors "github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/task"
)

// collector records messages delivered to a handler.
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) all() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
}

func TestBus_SendDeliversAsynchronously(t *testing.T) {
	b := New()
	var c collector
	if err := b.RegisterHandler("w-2", c.handle); err != nil {
		t.Fatal(err)
	}

	id, err := b.Send(Message{From: "w-1", To: "w-2", Kind: KindStatusUpdate, Subject: "progress", Payload: map[string]any{"pct": 50}})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if id == "" {
		t.Error("Send() should assign an ID")
	}
	b.Wait()

	got := c.all()
	if len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	if got[0].Subject != "progress" || got[0].Timestamp.IsZero() {
		t.Errorf("unexpected message: %+v", got[0])
	}

	s := b.Stats()
	if s.Delivered != 1 || s.Failed != 0 || s.ByKind[KindStatusUpdate] != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBus_UnregisteredRecipientRecordsFailure(t *testing.T) {
	events := event.NewBus()
	var failed []event.MessageFailedEvent
	events.Subscribe(event.TypeMessageFailed, func(e event.Event) {
		failed = append(failed, e.(event.MessageFailedEvent))
	})
	b := New(WithEventBus(events))

	_, err := b.Send(Message{From: "w-1", To: "ghost", Kind: KindRequest})
	if err != nil {
		t.Fatalf("Send() to unregistered recipient should not error, got %v", err)
	}

	if s := b.Stats(); s.Failed != 1 || s.Delivered != 0 {
		t.Errorf("Stats() = %+v, want 1 failure", s)
	}
	if len(failed) != 1 || failed[0].To != "ghost" {
		t.Errorf("failure events = %+v", failed)
	}
}

func TestBus_SendValidation(t *testing.T) {
	b := New()
	tests := []struct {
		name string
		msg  Message
	}{
		{"missing from", Message{To: "a", Kind: KindStatusUpdate}},
		{"missing to", Message{From: "a", Kind: KindStatusUpdate}},
		{"unknown kind", Message{From: "a", To: "b", Kind: "gossip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Send(tt.msg)
			if !errors.Is(err, cerrors.ErrInvalidInput) {
				t.Errorf("Send() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestBus_BroadcastExcludesSender(t *testing.T) {
	b := New()
	var a, c, sender collector
	_ = b.RegisterHandler("a", a.handle)
	_ = b.RegisterHandler("c", c.handle)
	_ = b.RegisterHandler("sender", sender.handle)

	n, err := b.Broadcast("sender", "launch", map[string]any{"campaign": "spring"})
	if err != nil {
		t.Fatal(err)
	}
	b.Wait()

	if n != 2 {
		t.Errorf("Broadcast() recipients = %d, want 2", n)
	}
	if len(a.all()) != 1 || len(c.all()) != 1 {
		t.Error("every other worker should receive the broadcast")
	}
	if len(sender.all()) != 0 {
		t.Error("sender should not receive its own broadcast")
	}
	if a.all()[0].To != "a" {
		t.Errorf("delivered copy should be addressed to the recipient, got %q", a.all()[0].To)
	}
}

func TestBus_RegisterHandlerReplaces(t *testing.T) {
	b := New()
	var first, second collector
	_ = b.RegisterHandler("w", first.handle)
	_ = b.RegisterHandler("w", second.handle)

	_, _ = b.Send(Message{From: "x", To: "w", Kind: KindStatusUpdate})
	b.Wait()

	if len(first.all()) != 0 || len(second.all()) != 1 {
		t.Error("the replacement handler should receive messages")
	}

	if err := b.RegisterHandler("", second.handle); err == nil {
		t.Error("empty worker id should be rejected")
	}
	if err := b.RegisterHandler(BroadcastRecipient, second.handle); err == nil {
		t.Error("broadcast id should be rejected")
	}

	b.UnregisterHandler("w")
	if b.HasHandler("w") {
		t.Error("handler should be removed")
	}
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("w", func(Message) { panic("boom") })

	if _, err := b.Send(Message{From: "x", To: "w", Kind: KindStatusUpdate}); err != nil {
		t.Fatal(err)
	}
	b.Wait()

	if s := b.Stats(); s.HandlerPanics != 1 {
		t.Errorf("HandlerPanics = %d, want 1", s.HandlerPanics)
	}
}

func TestBus_RequestReply(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("analyst", func(m Message) {
		if m.Kind == KindRequest {
			_, _ = b.Reply(m, map[string]any{"reach": 1200})
		}
	})
	var requesterInbox collector
	_ = b.RegisterHandler("strategist", requesterInbox.handle)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := b.Request(ctx, Message{From: "strategist", To: "analyst", Subject: "weekly reach"})
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if reply.Kind != KindResponse || reply.Payload["reach"] != 1200 {
		t.Errorf("reply = %+v", reply)
	}
	b.Wait()
	if len(requesterInbox.all()) != 0 {
		t.Error("correlated replies should go to the waiting caller, not the handler")
	}
	if s := b.Stats(); s.PendingRequests != 0 {
		t.Errorf("PendingRequests = %d after reply", s.PendingRequests)
	}
}

func TestBus_RequestTimeoutAndUnknownRecipient(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("silent", func(Message) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Request(ctx, Message{From: "a", To: "silent"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Request() error = %v, want deadline exceeded", err)
	}
	if s := b.Stats(); s.PendingRequests != 0 {
		t.Errorf("timed-out request should be dropped, pending = %d", s.PendingRequests)
	}

	_, err = b.Request(context.Background(), Message{From: "a", To: "nobody"})
	if !errors.Is(err, cerrors.ErrRecipientNotRegistered) {
		t.Errorf("Request() error = %v, want ErrRecipientNotRegistered", err)
	}
}

func TestBus_ReplyRequiresRequest(t *testing.T) {
	b := New()
	if _, err := b.Reply(Message{Kind: KindStatusUpdate, From: "a", To: "b"}, nil); err == nil {
		t.Error("Reply to a non-request should fail")
	}
}

func TestBus_HistoryIsBounded(t *testing.T) {
	b := New(WithHistoryLimit(3))
	_ = b.RegisterHandler("w", func(Message) {})
	for i := range 5 {
		_, _ = b.Send(Message{From: "x", To: "w", Kind: KindStatusUpdate, Subject: string(rune('a' + i))})
	}
	b.Wait()

	h := b.History("")
	if len(h) != 3 {
		t.Fatalf("History() length = %d, want 3", len(h))
	}
	if h[0].Subject != "c" || h[2].Subject != "e" {
		t.Errorf("History() should keep the most recent messages, got %v..%v", h[0].Subject, h[2].Subject)
	}
	if len(b.History("unrelated")) != 0 {
		t.Error("History filtered by an unrelated worker should be empty")
	}
}

func TestBus_Handoff(t *testing.T) {
	clock := newClock()
	b := New(WithClock(clock.Now), WithHandoffTTL(5*time.Minute))
	var inbox collector
	_ = b.RegisterHandler("writer-2", inbox.handle)

	tk := task.Task{ID: "t-1", WorkerType: "content", TenantID: "org1"}
	id, err := b.ProposeHandoff("writer-1", "writer-2", tk)
	if err != nil {
		t.Fatal(err)
	}
	b.Wait()

	msgs := inbox.all()
	if len(msgs) != 1 || msgs[0].Kind != KindTaskHandoff || msgs[0].Payload["handoff_id"] != id {
		t.Fatalf("recipient should be notified of the handoff, got %+v", msgs)
	}
	if got := b.PendingHandoffs("writer-2"); len(got) != 1 {
		t.Errorf("PendingHandoffs() = %d, want 1", len(got))
	}

	if _, ok := b.AcceptHandoff(id, "someone-else"); ok {
		t.Error("only the intended recipient may accept")
	}
	got, ok := b.AcceptHandoff(id, "writer-2")
	if !ok || got.ID != "t-1" {
		t.Fatalf("AcceptHandoff() = %+v, %v", got, ok)
	}
	if _, ok := b.AcceptHandoff(id, "writer-2"); ok {
		t.Error("a handoff can only be accepted once")
	}
	if s := b.Stats(); s.ActiveHandoffs != 0 {
		t.Errorf("ActiveHandoffs = %d after accept", s.ActiveHandoffs)
	}
}

func TestBus_HandoffExpires(t *testing.T) {
	clock := newClock()
	events := event.NewBus()
	var expired []event.HandoffExpiredEvent
	events.Subscribe(event.TypeHandoffExpired, func(e event.Event) {
		expired = append(expired, e.(event.HandoffExpiredEvent))
	})
	b := New(WithClock(clock.Now), WithHandoffTTL(time.Minute), WithEventBus(events))

	// Recipient not registered yet: notification fails, handoff is still held
	first, err := b.ProposeHandoff("a", "b", task.Task{ID: "t-1"})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := b.ProposeHandoff("a", "b", task.Task{ID: "t-2"})
	if s := b.Stats(); s.Failed != 2 || s.ActiveHandoffs != 2 {
		t.Errorf("Stats() = %+v", s)
	}

	clock.Advance(time.Minute)

	// Lazy expiry on accept
	if _, ok := b.AcceptHandoff(first, "b"); ok {
		t.Error("expired handoff should not be accepted")
	}

	// Sweep removes the other one and publishes an event
	handoffs, _ := b.Sweep(clock.Now())
	if handoffs != 1 {
		t.Errorf("Sweep() removed %d handoffs, want 1", handoffs)
	}
	if len(expired) != 1 || expired[0].HandoffID != second {
		t.Errorf("expired events = %+v", expired)
	}
	if s := b.Stats(); s.ActiveHandoffs != 0 || s.ExpiredHandoffs != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBus_ProposeHandoffValidation(t *testing.T) {
	b := New()
	if _, err := b.ProposeHandoff("", "b", task.Task{}); err == nil {
		t.Error("missing sender should fail")
	}
	if _, err := b.ProposeHandoff("a", BroadcastRecipient, task.Task{}); err == nil {
		t.Error("broadcast handoff should fail")
	}
}

func TestBus_ShareData(t *testing.T) {
	clock := newClock()
	b := New(WithClock(clock.Now), WithShareTTL(10*time.Minute))
	var peer, source collector
	_ = b.RegisterHandler("peer", peer.handle)
	_ = b.RegisterHandler("source", source.handle)

	id, err := b.ShareData("source", "audience_report", map[string]any{"segments": 4}, map[string]any{"tenant": "org1"})
	if err != nil {
		t.Fatal(err)
	}
	b.Wait()

	notes := peer.all()
	if len(notes) != 1 || notes[0].Kind != KindDataShare || notes[0].Payload["share_id"] != id {
		t.Fatalf("peer notification = %+v", notes)
	}
	if len(source.all()) != 0 {
		t.Error("source should not be notified of its own share")
	}

	got, ok := b.GetSharedData(id)
	if !ok || got.DataType != "audience_report" || got.Metadata["tenant"] != "org1" {
		t.Errorf("GetSharedData() = %+v, %v", got, ok)
	}

	clock.Advance(10 * time.Minute)
	if _, ok := b.GetSharedData(id); ok {
		t.Error("expired share should not be retrievable")
	}
	if _, shares := b.Sweep(clock.Now()); shares != 1 {
		t.Errorf("Sweep() removed %d shares, want 1", shares)
	}

	if _, err := b.ShareData("source", "", nil, nil); err == nil {
		t.Error("missing data type should fail")
	}
}

func TestBus_RunStopsOnCancel(t *testing.T) {
	b := New(WithSweepInterval(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
