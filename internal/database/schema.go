package database

import (
	"context"
	"fmt"
	"log/slog"

	"patchdb/internal/config"
	"patchdb/internal/middleware"

	"gorm.io/gorm"
)

// TableStatus reports whether the table behind a persistent model exists.
type TableStatus struct {
	Table  string
	Exists bool
}

// SchemaStatus summarises the schema state of a database.
type SchemaStatus struct {
	Environment        string
	WillRunAutoMigrate bool
	Tables             []TableStatus
}

// Pending returns the tables that have not been created yet.
func (s *SchemaStatus) Pending() []string {
	var out []string
	for _, t := range s.Tables {
		if !t.Exists {
			out = append(out, t.Table)
		}
	}
	return out
}

// AutoMigrate creates or updates every persistent model's table.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// ApplySchema runs AutoMigrate when the configuration allows it.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	if !cfg.DBAutoMigrate {
		middleware.Logger.Info("Skipping schema migration", slog.String("env", cfg.Env))
		return nil
	}
	if err := AutoMigrate(ctx, db); err != nil {
		return err
	}
	middleware.Logger.Info("Database migration completed", slog.Int("models", len(PersistentModels())))
	return nil
}

// GetSchemaStatus inspects which model tables exist.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	status := &SchemaStatus{
		Environment:        cfg.Env,
		WillRunAutoMigrate: cfg.DBAutoMigrate,
	}

	migrator := db.WithContext(ctx).Migrator()
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse model %T: %w", model, err)
		}
		status.Tables = append(status.Tables, TableStatus{
			Table:  stmt.Schema.Table,
			Exists: migrator.HasTable(model),
		})
	}
	return status, nil
}
