package mailbox

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/task"
)

// ProposeHandoff offers t from one worker to another. The task is held
// until the recipient pulls it with AcceptHandoff or the handoff TTL
// passes. The recipient is notified with a KindTaskHandoff message whose
// payload carries the handoff ID. If the recipient has no handler the
// notification is recorded as a delivery failure but the handoff is still
// held, so a worker that registers later can accept it.
func (b *Bus) ProposeHandoff(from, to string, t task.Task) (string, error) {
	if from == "" {
		return "", errors.NewValidationError("handoff from is required").WithField("from")
	}
	if to == "" || to == BroadcastRecipient {
		return "", errors.NewValidationError("handoff needs a single recipient").WithField("to").WithValue(to)
	}

	now := b.now()
	h := &Handoff{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		Task:       t.Clone(),
		ProposedAt: now,
		ExpiresAt:  now.Add(b.handoffTTL),
	}

	b.mu.Lock()
	b.handoffs[h.ID] = h
	b.mu.Unlock()

	b.logger.Debug("handoff proposed", "handoff_id", h.ID, "task_id", t.ID, "from", from, "to", to)

	_, err := b.Send(Message{
		From:    from,
		To:      to,
		Kind:    KindTaskHandoff,
		Subject: "handoff:" + t.ID,
		Payload: map[string]any{
			"handoff_id":  h.ID,
			"task_id":     t.ID,
			"worker_type": t.WorkerType,
			"expires_at":  h.ExpiresAt,
		},
	})
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

// AcceptHandoff pulls a proposed task. Only the intended recipient can
// accept it, and only before it expires. A handoff can be accepted once.
func (b *Bus) AcceptHandoff(handoffID, workerID string) (task.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.handoffs[handoffID]
	if !ok {
		return task.Task{}, false
	}
	if !b.now().Before(h.ExpiresAt) {
		delete(b.handoffs, handoffID)
		b.stats.ExpiredHandoffs++
		return task.Task{}, false
	}
	if h.To != workerID {
		return task.Task{}, false
	}
	delete(b.handoffs, handoffID)
	return h.Task.Clone(), true
}

// PendingHandoffs returns handoffs waiting for workerID, or all of them when
// workerID is empty, ordered by proposal time.
func (b *Bus) PendingHandoffs(workerID string) []Handoff {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Handoff
	for _, id := range slices.Sorted(maps.Keys(b.handoffs)) {
		h := b.handoffs[id]
		if workerID == "" || h.To == workerID {
			c := *h
			c.Task = h.Task.Clone()
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, c Handoff) int {
		return a.ProposedAt.Compare(c.ProposedAt)
	})
	return out
}
