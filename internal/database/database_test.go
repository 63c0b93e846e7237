package database

import (
	"context"
	"testing"

	"patchdb/internal/config"
	"patchdb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openMemoryDB(t)

	cfg := &config.Config{
		DBType:                   "postgres",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_SQLiteSingleConnection(t *testing.T) {
	db := openMemoryDB(t)
	require.NoError(t, configurePool(db, &config.Config{DBType: "sqlite", DBMaxOpenConns: 25}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	for _, dbType := range []string{"sqlite", "postgres", "mysql"} {
		d, err := Dialector(&config.Config{DBType: dbType, DBPath: ":memory:", DBHost: "h", DBName: "n"})
		require.NoError(t, err, dbType)
		assert.NotNil(t, d)
	}

	_, err := Dialector(&config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestApplySchemaAndStatus(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	cfg := &config.Config{Env: "test", DBAutoMigrate: true}

	before, err := GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Len(t, before.Pending(), len(PersistentModels()))

	require.NoError(t, ApplySchema(ctx, db, cfg))

	after, err := GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Empty(t, after.Pending())
	assert.True(t, db.Migrator().HasIndex(&models.UserPatch{}, "idx_user_patch_owner"))
}

func TestApplySchema_Disabled(t *testing.T) {
	db := openMemoryDB(t)
	require.NoError(t, ApplySchema(context.Background(), db, &config.Config{DBAutoMigrate: false}))
	assert.False(t, db.Migrator().HasTable(&models.Patch{}))
}
