package attachment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusSuperseded Status = "superseded"
	StatusDeleted    Status = "deleted"
)

// Attachment represents order_item_attachments. One row per upload that reached
// metadata commit; at most one row per item has DeletedAt == nil.
type Attachment struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID      int64      `gorm:"not null;index" json:"order_id"`
	ItemID       int64      `gorm:"not null;index" json:"item_id"`
	ObjectKey    string     `gorm:"type:text;not null;uniqueIndex" json:"object_key"`
	OriginalName string     `gorm:"type:text;not null" json:"original_name"`
	ContentType  string     `gorm:"type:text;not null" json:"content_type"`
	SizeBytes    int64      `gorm:"not null" json:"size_bytes"`
	Checksum     *string    `gorm:"type:text" json:"checksum,omitempty"`
	Status       Status     `gorm:"type:text;not null;default:'uploaded'" json:"status"`
	CreatedBy    *int64     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

func (Attachment) TableName() string {
	return "order_item_attachments"
}

func (a Attachment) IsActive() bool {
	return a.DeletedAt == nil
}
