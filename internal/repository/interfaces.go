package repository

import (
	"context"

	"uniforme-api/internal/domain/attachment"

	"github.com/google/uuid"
)

// OrderItemRepository answers ownership questions about production order line items.
type OrderItemRepository interface {
	BelongsToOrder(ctx context.Context, orderID, itemID int64) (bool, error)
}

// AttachmentRepository persists layout file metadata. Every method that reads the
// "active" attachment goes through GetActiveByItem so the predicate lives in one place.
type AttachmentRepository interface {
	// Replace supersedes every active row of the item and inserts a as the new
	// active row, atomically.
	Replace(ctx context.Context, a *attachment.Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (attachment.Attachment, error)
	GetActiveByItem(ctx context.Context, itemID int64) (attachment.Attachment, error)
	ListByItem(ctx context.Context, itemID int64) ([]attachment.Attachment, error)
	// SoftDelete marks an active attachment of the item as deleted and returns
	// the row as it was committed.
	SoftDelete(ctx context.Context, orderID, itemID int64, id uuid.UUID) (attachment.Attachment, error)
}
