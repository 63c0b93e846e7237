package repository

import (
	"context"

	"patchdb/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PatchSubmissionRepository persists submissions.
type PatchSubmissionRepository interface {
	Create(ctx context.Context, s *models.PatchSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PatchSubmission, error)
	Save(ctx context.Context, s *models.PatchSubmission) error
	ListByStatus(ctx context.Context, status models.SubmissionStatus, skip, take int) ([]models.PatchSubmission, error)
	ListByUploader(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.PatchSubmission, error)
}

type patchSubmissionRepository struct {
	db *gorm.DB
}

// NewPatchSubmissionRepository returns a gorm-backed PatchSubmissionRepository.
func NewPatchSubmissionRepository(db *gorm.DB) PatchSubmissionRepository {
	return &patchSubmissionRepository{db: db}
}

func (r *patchSubmissionRepository) Create(ctx context.Context, s *models.PatchSubmission) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *patchSubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PatchSubmission, error) {
	var s models.PatchSubmission
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "PatchSubmission", id)
	}
	return &s, nil
}

func (r *patchSubmissionRepository) Save(ctx context.Context, s *models.PatchSubmission) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListByStatus orders by release date, newest first, with undated submissions last.
func (r *patchSubmissionRepository) ListByStatus(ctx context.Context, status models.SubmissionStatus, skip, take int) ([]models.PatchSubmission, error) {
	var out []models.PatchSubmission
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("CASE WHEN release_date IS NULL THEN 1 ELSE 0 END, release_date DESC, created_at ASC").
		Offset(skip).Limit(take).
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *patchSubmissionRepository) ListByUploader(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.PatchSubmission, error) {
	var out []models.PatchSubmission
	if err := r.db.WithContext(ctx).
		Where("uploaded_by_user_id = ?", userID).
		Order("created_at DESC").
		Offset(skip).Limit(take).
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}
