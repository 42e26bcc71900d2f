package events

import "fmt"

// Attachment events. These follow the format: domain.action
const (
	EventTypeAttachmentUploaded = "attachment.uploaded"
	EventTypeAttachmentDeleted  = "attachment.deleted"
)

const AggregateTypeOrderItem = "order_item"

// AttachmentPayload is the body of attachment events.
type AttachmentPayload struct {
	AttachmentID string `json:"attachment_id"`
	OrderID      int64  `json:"order_id"`
	ItemID       int64  `json:"item_id"`
	ObjectKey    string `json:"object_key"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	ActorID      *int64 `json:"actor_id,omitempty"`
}

// OrderAttachmentsChannel is the pub/sub channel carrying every attachment
// change of one production order.
func OrderAttachmentsChannel(orderID int64) string {
	return fmt.Sprintf("channel:order:%d:attachments", orderID)
}
