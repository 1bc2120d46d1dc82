package mailbox

import (
	"maps"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// ShareData publishes a named artifact and notifies every other worker with
// a KindDataShare message. The artifact itself is retained for the share
// TTL and fetched with GetSharedData; it is not a long-term store.
func (b *Bus) ShareData(sourceWorkerID, dataType string, data any, metadata map[string]any) (string, error) {
	if sourceWorkerID == "" {
		return "", errors.NewValidationError("share source is required").WithField("source")
	}
	if dataType == "" {
		return "", errors.NewValidationError("data type is required").WithField("data_type")
	}

	now := b.now()
	s := &SharedData{
		ID:        uuid.NewString(),
		Source:    sourceWorkerID,
		DataType:  dataType,
		Data:      data,
		Metadata:  maps.Clone(metadata),
		SharedAt:  now,
		ExpiresAt: now.Add(b.shareTTL),
	}

	b.mu.Lock()
	b.shares[s.ID] = s
	b.mu.Unlock()

	payload := map[string]any{
		"share_id":  s.ID,
		"data_type": dataType,
	}
	if len(metadata) > 0 {
		payload["metadata"] = maps.Clone(metadata)
	}

	_, err := b.Send(Message{
		From:    sourceWorkerID,
		To:      BroadcastRecipient,
		Kind:    KindDataShare,
		Subject: dataType,
		Payload: payload,
	})
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// GetSharedData returns a shared artifact while it is retained.
func (b *Bus) GetSharedData(shareID string) (SharedData, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.shares[shareID]
	if !ok || !b.now().Before(s.ExpiresAt) {
		return SharedData{}, false
	}
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	return c, true
}
