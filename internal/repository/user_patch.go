package repository

import (
	"context"

	"patchdb/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserPatchRepository persists collections and the uploads attached to them.
type UserPatchRepository interface {
	CreateUpload(ctx context.Context, upload *models.UserPatchUpload) error
	// GetUpload returns the upload only when it belongs to userID.
	GetUpload(ctx context.Context, userID, uploadID uuid.UUID) (*models.UserPatchUpload, error)
	// FindOrCreate returns the user's entry for the patch, creating it when absent.
	FindOrCreate(ctx context.Context, userID uuid.UUID, patchNumber uint) (*models.UserPatch, error)
	GetByID(ctx context.Context, userID, userPatchID uuid.UUID) (*models.UserPatch, error)
	SetUploadMatch(ctx context.Context, uploadID uuid.UUID, userPatchID *uuid.UUID) error
	SetFavorite(ctx context.Context, userPatchID uuid.UUID, favorite bool) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserPatch, error)
	ListByUserAndNumbers(ctx context.Context, userID uuid.UUID, numbers []uint) ([]models.UserPatch, error)
	ListUnmatched(ctx context.Context, userID uuid.UUID) ([]models.UserPatchUpload, error)
	OwnedNumbers(ctx context.Context, userID uuid.UUID, numbers []uint) (map[uint]bool, error)
	// DetachPatch removes every collection entry for the patch and unmatches their uploads.
	DetachPatch(ctx context.Context, patchNumber uint) (int64, error)
}

type userPatchRepository struct {
	db *gorm.DB
}

// NewUserPatchRepository returns a gorm-backed UserPatchRepository.
func NewUserPatchRepository(db *gorm.DB) UserPatchRepository {
	return &userPatchRepository{db: db}
}

func (r *userPatchRepository) CreateUpload(ctx context.Context, upload *models.UserPatchUpload) error {
	if err := r.db.WithContext(ctx).Create(upload).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userPatchRepository) GetUpload(ctx context.Context, userID, uploadID uuid.UUID) (*models.UserPatchUpload, error) {
	var upload models.UserPatchUpload
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uploadID, userID).
		First(&upload).Error; err != nil {
		return nil, wrap(err, "UserPatchUpload", uploadID)
	}
	return &upload, nil
}

func (r *userPatchRepository) FindOrCreate(ctx context.Context, userID uuid.UUID, patchNumber uint) (*models.UserPatch, error) {
	entry := models.UserPatch{UserID: userID, PatchNumber: patchNumber}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var existing models.UserPatch
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND patch_number = ?", userID, patchNumber).
		First(&existing).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return &existing, nil
}

func (r *userPatchRepository) GetByID(ctx context.Context, userID, userPatchID uuid.UUID) (*models.UserPatch, error) {
	var entry models.UserPatch
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", userPatchID, userID).
		First(&entry).Error; err != nil {
		return nil, wrap(err, "UserPatch", userPatchID)
	}
	return &entry, nil
}

func (r *userPatchRepository) SetUploadMatch(ctx context.Context, uploadID uuid.UUID, userPatchID *uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.UserPatchUpload{}).
		Where("id = ?", uploadID).
		Update("user_patch_id", userPatchID)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("UserPatchUpload", uploadID)
	}
	return nil
}

func (r *userPatchRepository) SetFavorite(ctx context.Context, userPatchID uuid.UUID, favorite bool) error {
	if err := r.db.WithContext(ctx).Model(&models.UserPatch{}).
		Where("id = ?", userPatchID).
		Update("is_favorite", favorite).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userPatchRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserPatch, error) {
	var entries []models.UserPatch
	if err := r.withDetails(ctx).
		Where("user_id = ?", userID).
		Order("patch_number ASC").
		Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (r *userPatchRepository) ListByUserAndNumbers(ctx context.Context, userID uuid.UUID, numbers []uint) ([]models.UserPatch, error) {
	if len(numbers) == 0 {
		return []models.UserPatch{}, nil
	}
	var entries []models.UserPatch
	if err := r.withDetails(ctx).
		Where("user_id = ? AND patch_number IN ?", userID, numbers).
		Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (r *userPatchRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Patch").
		Preload("Uploads", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
}

func (r *userPatchRepository) ListUnmatched(ctx context.Context, userID uuid.UUID) ([]models.UserPatchUpload, error) {
	var uploads []models.UserPatchUpload
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND user_patch_id IS NULL", userID).
		Order("created_at DESC").
		Find(&uploads).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return uploads, nil
}

func (r *userPatchRepository) OwnedNumbers(ctx context.Context, userID uuid.UUID, numbers []uint) (map[uint]bool, error) {
	owned := make(map[uint]bool, len(numbers))
	if len(numbers) == 0 || userID == uuid.Nil {
		return owned, nil
	}
	var found []uint
	if err := r.db.WithContext(ctx).Model(&models.UserPatch{}).
		Where("user_id = ? AND patch_number IN ?", userID, numbers).
		Pluck("patch_number", &found).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, n := range found {
		owned[n] = true
	}
	return owned, nil
}

func (r *userPatchRepository) DetachPatch(ctx context.Context, patchNumber uint) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&models.UserPatch{}).
			Where("patch_number = ?", patchNumber).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Model(&models.UserPatchUpload{}).
			Where("user_patch_id IN ?", ids).
			Update("user_patch_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.UserPatch{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return removed, nil
}
