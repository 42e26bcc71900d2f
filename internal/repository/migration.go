package repository

import (
	"fmt"

	"uniforme-api/internal/domain/attachment"

	"gorm.io/gorm"
)

// ActiveAttachmentIndex is the partial unique index backing the
// one-active-attachment-per-item rule.
const ActiveAttachmentIndex = "ux_order_item_attachments_active"

// InitSchema migrates the tables owned by the attachment subsystem.
// The line item table is owned by the order CRUD side and is not touched here.
func InitSchema(db *gorm.DB) error {
	// 1. Tables
	if err := db.AutoMigrate(&attachment.Attachment{}); err != nil {
		return fmt.Errorf("failed to migrate attachments: %w", err)
	}

	// 2. Indexes gorm tags cannot express portably
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + ActiveAttachmentIndex + `
			ON order_item_attachments (item_id) WHERE deleted_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS ix_order_item_attachments_item_created
			ON order_item_attachments (item_id, created_at DESC);`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
