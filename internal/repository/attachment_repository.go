package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uniforme-api/internal/domain/attachment"
	"uniforme-api/internal/domain/orderitem"
	uniforme_errors "uniforme-api/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresAttachmentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &PostgresAttachmentRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// lockItem holds a row lock on the owning line item until the transaction
// ends, so writers for one item run one at a time.
func lockItem(tx *gorm.DB, orderID, itemID int64) error {
	var item orderitem.Item
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND ordem_id = ?", itemID, orderID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uniforme_errors.ErrOwnership
		}
		return err
	}
	return nil
}

func (r *PostgresAttachmentRepository) Replace(ctx context.Context, a *attachment.Attachment) error {
	if a == nil {
		return uniforme_errors.ErrInvalidInput
	}
	now := r.now()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.Status = attachment.StatusUploaded
	a.DeletedAt = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockItem(tx, a.OrderID, a.ItemID); err != nil {
			return err
		}

		var recorded int64
		if err := tx.Model(&attachment.Attachment{}).
			Where("object_key = ?", a.ObjectKey).
			Count(&recorded).Error; err != nil {
			return err
		}
		if recorded > 0 {
			return uniforme_errors.ErrKeyRecorded
		}

		if err := tx.Model(&attachment.Attachment{}).
			Where("item_id = ? AND deleted_at IS NULL", a.ItemID).
			Updates(map[string]interface{}{
				"deleted_at": now,
				"status":     attachment.StatusSuperseded,
			}).Error; err != nil {
			return err
		}

		return tx.Create(a).Error
	})
	return mapTxError(err)
}

func (r *PostgresAttachmentRepository) GetByID(ctx context.Context, id uuid.UUID) (attachment.Attachment, error) {
	var a attachment.Attachment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attachment.Attachment{}, uniforme_errors.ErrNotFound
		}
		return attachment.Attachment{}, fmt.Errorf("%w: %v", uniforme_errors.ErrMetadataTransaction, err)
	}
	return a, nil
}

func (r *PostgresAttachmentRepository) GetActiveByItem(ctx context.Context, itemID int64) (attachment.Attachment, error) {
	var a attachment.Attachment
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND deleted_at IS NULL AND status = ?", itemID, attachment.StatusUploaded).
		Order("created_at DESC").
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attachment.Attachment{}, uniforme_errors.ErrNotFound
		}
		return attachment.Attachment{}, fmt.Errorf("%w: %v", uniforme_errors.ErrMetadataTransaction, err)
	}
	return a, nil
}

func (r *PostgresAttachmentRepository) ListByItem(ctx context.Context, itemID int64) ([]attachment.Attachment, error) {
	var items []attachment.Attachment
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", uniforme_errors.ErrMetadataTransaction, err)
	}
	return items, nil
}

func (r *PostgresAttachmentRepository) SoftDelete(ctx context.Context, orderID, itemID int64, id uuid.UUID) (attachment.Attachment, error) {
	var deleted attachment.Attachment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockItem(tx, orderID, itemID); err != nil {
			return err
		}
		err := tx.Where("id = ? AND order_id = ? AND item_id = ? AND deleted_at IS NULL", id, orderID, itemID).
			First(&deleted).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return uniforme_errors.ErrNotFound
			}
			return err
		}

		now := r.now()
		res := tx.Model(&attachment.Attachment{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(map[string]interface{}{
				"deleted_at": now,
				"status":     attachment.StatusDeleted,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return uniforme_errors.ErrNotFound
		}
		deleted.DeletedAt = &now
		deleted.Status = attachment.StatusDeleted
		return nil
	})
	if err != nil {
		return attachment.Attachment{}, mapTxError(err)
	}
	return deleted, nil
}
