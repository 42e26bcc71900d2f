package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"uniforme-api/internal/domain/attachment"
)

// Publisher sends raw payloads to a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// AttachmentNotifier wraps attachment changes in an Envelope and publishes them
// on the owning order's channel.
type AttachmentNotifier struct {
	publisher Publisher
	now       func() time.Time
}

func NewAttachmentNotifier(publisher Publisher) *AttachmentNotifier {
	return &AttachmentNotifier{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (n *AttachmentNotifier) Notify(ctx context.Context, eventType string, a attachment.Attachment) error {
	if n == nil || n.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(AttachmentPayload{
		AttachmentID: a.ID.String(),
		OrderID:      a.OrderID,
		ItemID:       a.ItemID,
		ObjectKey:    a.ObjectKey,
		OriginalName: a.OriginalName,
		SizeBytes:    a.SizeBytes,
		ActorID:      a.CreatedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	data, err := json.Marshal(Envelope{
		EventType:     eventType,
		AggregateType: AggregateTypeOrderItem,
		AggregateID:   strconv.FormatInt(a.ItemID, 10),
		OccurredAt:    n.now(),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return n.publisher.Publish(ctx, OrderAttachmentsChannel(a.OrderID), data)
}
