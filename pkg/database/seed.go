package database

import (
	"errors"
	"fmt"
	"log"

	"uniforme-api/internal/domain/orderitem"

	"gorm.io/gorm"
)

// SeedConfig describes the sample line item created for local testing.
type SeedConfig struct {
	OrderID int64
	ItemID  int64
}

func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		OrderID: 7,
		ItemID:  42,
	}
}

// SeedDevelopment makes sure a line item exists so the attachment routes can
// be exercised against a fresh database. The line item table normally belongs
// to the order side; it is only created here when missing.
func SeedDevelopment(db *gorm.DB, cfg *SeedConfig) (*orderitem.Item, error) {
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	if !db.Migrator().HasTable(&orderitem.Item{}) {
		log.Printf("Creating table %s for development", orderitem.Item{}.TableName())
		if err := db.AutoMigrate(&orderitem.Item{}); err != nil {
			return nil, fmt.Errorf("failed to create line item table: %w", err)
		}
	}

	item := orderitem.Item{ID: cfg.ItemID, OrderID: cfg.OrderID}
	err := db.Where("id = ?", cfg.ItemID).FirstOrCreate(&item).Error
	if err != nil {
		return nil, fmt.Errorf("failed to seed line item: %w", err)
	}
	if item.OrderID != cfg.OrderID {
		return nil, fmt.Errorf("line item %d already belongs to order %d", item.ID, item.OrderID)
	}
	return &item, nil
}

func TableExists(name string) (bool, error) {
	if DB == nil {
		return false, errors.New("database not initialized")
	}
	return DB.Migrator().HasTable(name), nil
}

func GetTableCount(name string) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialized")
	}
	var count int64
	if err := DB.Table(name).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
