package repository

import (
	"fmt"
	"testing"

	"uniforme-api/internal/domain/orderitem"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory SQLite database with the attachment
// schema and a minimal line item table. A single connection serialises
// transactions the way the item row lock does on Postgres.
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&orderitem.Item{}); err != nil {
		t.Fatalf("migrate line items: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

// CreateTestItem inserts line item itemID under orderID.
func CreateTestItem(t testing.TB, db *gorm.DB, orderID, itemID int64) {
	t.Helper()
	if err := db.Create(&orderitem.Item{ID: itemID, OrderID: orderID}).Error; err != nil {
		t.Fatalf("create line item: %v", err)
	}
}
