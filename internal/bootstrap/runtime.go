// Package bootstrap wires the shared runtime (database, schema, Redis) for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"patchdb/internal/cache"
	"patchdb/internal/config"
	"patchdb/internal/database"
	"patchdb/internal/middleware"
	"patchdb/internal/models"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema leaves the schema untouched even when DB_AUTO_MIGRATE is set.
	SkipSchema bool
	// SkipRedis does not connect to Redis.
	SkipRedis bool
}

// InitRuntime connects to DB and Redis, applies the schema and ensures the
// development admin account.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	ctx := context.Background()
	if !opts.SkipSchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
	}

	// Init Redis (may result in nil client if unreachable)
	var r *redis.Client
	if !opts.SkipRedis {
		cache.InitRedis(cfg.RedisURL)
		r = cache.GetClient()
	}

	if err := EnsureDevAdmin(ctx, cfg, db); err != nil {
		_ = database.Close(db)
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	return db, r, nil
}

// EnsureDevAdmin creates or promotes the configured development admin. It is a
// no-op outside development or when DEV_BOOTSTRAP_ADMIN is off.
func EnsureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	if username == "" {
		username = "patchdb_admin"
	}
	password := cfg.DevAdminPassword
	if password == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	hash := string(hashedPassword)

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.Where("username = ?", username).First(&admin).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			admin = models.User{
				Username:     username,
				PasswordHash: &hash,
				Role:         models.RoleAdmin,
				State:        models.UserStateActive,
			}
			return tx.Create(&admin).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&models.User{}).Where("id = ?", admin.ID).Updates(map[string]any{
				"role":          models.RoleAdmin,
				"state":         models.UserStateActive,
				"password_hash": hash,
			}).Error
		}
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("Development admin bootstrap ensured", slog.String("username", username))
	return nil
}
