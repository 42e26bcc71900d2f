package repository

import (
	"context"
	"fmt"

	"uniforme-api/internal/domain/orderitem"
	uniforme_errors "uniforme-api/pkg/errors"

	"gorm.io/gorm"
)

type PostgresOrderItemRepository struct {
	db *gorm.DB
}

func NewOrderItemRepository(db *gorm.DB) OrderItemRepository {
	return &PostgresOrderItemRepository{db: db}
}

func (r *PostgresOrderItemRepository) BelongsToOrder(ctx context.Context, orderID, itemID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&orderitem.Item{}).
		Where("id = ? AND ordem_id = ?", itemID, orderID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", uniforme_errors.ErrMetadataTransaction, err)
	}
	return count > 0, nil
}
