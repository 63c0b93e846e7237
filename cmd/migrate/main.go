// Command migrate runs schema operations for PatchDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"patchdb/internal/config"
	"patchdb/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <auto|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "auto", "up":
		if err := database.AutoMigrate(ctx, db); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		log.Printf("automigrations applied (%d models)", len(database.PersistentModels()))
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		log.Printf("env=%s run_auto=%t tables=%d pending=%d", status.Environment, status.WillRunAutoMigrate, len(status.Tables), len(status.Pending()))
		for _, table := range status.Pending() {
			log.Printf("pending: %s", table)
		}
	default:
		return usage()
	}

	return nil
}
