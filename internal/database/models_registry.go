package database

import "patchdb/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters: referenced tables come before the tables that reference them.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Following{},
		&models.PatchSubmission{},
		&models.Patch{},
		&models.UserPatch{},
		&models.UserPatchUpload{},
		&models.CollectionLinkJob{},
	}
}
