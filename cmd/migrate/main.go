package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"uniforme-api/config"
	"uniforme-api/internal/domain/attachment"
	"uniforme-api/internal/repository"
	"uniforme-api/pkg/database"
)

const usage = `
Uniforme API - Attachment schema CLI

Usage:
  migrate [command] [flags]

Commands:
  up          Create/upgrade order_item_attachments and its indexes
  status      Show connection status and attachment counts
  seed-dev    Create a sample order line item (not allowed in release mode)

Flags:
  -order int   Order id for seed-dev (default 7)
  -item int    Line item id for seed-dev (default 42)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go -order 7 -item 42 seed-dev
`

func main() {
	orderID := flag.Int64("order", 7, "Order id for seed-dev")
	itemID := flag.Int64("item", 42, "Line item id for seed-dev")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		runMigrationsUp()
	case "status":
		showStatus()
	case "seed-dev":
		if cfg.AppMode == "release" {
			log.Fatalf("seed-dev is disabled in release mode")
		}
		runSeedDevelopment(*orderID, *itemID)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("Running migrations UP...")

	if err := repository.InitSchema(database.DB); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}

func showStatus() {
	log.Println("Checking database status...")

	if err := database.HealthCheck(); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	table := attachment.Attachment{}.TableName()
	exists, err := database.TableExists(table)
	if err != nil {
		log.Fatalf("Error checking table %s: %v", table, err)
	}
	if !exists {
		log.Printf("Table %s does not exist, run 'up'", table)
		return
	}
	total, _ := database.GetTableCount(table)
	log.Printf("Table %-26s exists (%d rows)", table, total)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := database.DB.Table(table).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		log.Printf("Error counting by status: %v", err)
		return
	}
	for _, r := range rows {
		log.Printf("  %-12s %d", r.Status, r.Count)
	}
}

func runSeedDevelopment(orderID, itemID int64) {
	log.Println("Seeding database (development mode)...")

	item, err := database.SeedDevelopment(database.DB, &database.SeedConfig{OrderID: orderID, ItemID: itemID})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Line item %d ready on order %d", item.ID, item.OrderID)
}
