package repository

import (
	"context"
	"strings"

	"patchdb/internal/cache"
	"patchdb/internal/models"

	"gorm.io/gorm"
)

// PatchFilter narrows a patch search. Text fields match as substrings, UniversityCode exactly.
type PatchFilter struct {
	Name           string
	Description    string
	Maker          string
	Section        string
	UniversityCode string
}

// PatchRepository persists canonical patches.
type PatchRepository interface {
	Create(ctx context.Context, patch *models.Patch) error
	GetByNumber(ctx context.Context, number uint) (*models.Patch, error)
	GetByNumbers(ctx context.Context, numbers []uint) ([]models.Patch, error)
	Exists(ctx context.Context, number uint) (bool, error)
	List(ctx context.Context, skip, take int) ([]models.Patch, error)
	Search(ctx context.Context, filter PatchFilter, skip, take int) ([]models.Patch, error)
	Save(ctx context.Context, patch *models.Patch) error
	Delete(ctx context.Context, number uint) error
}

type patchRepository struct {
	db *gorm.DB
}

// NewPatchRepository returns a gorm-backed PatchRepository.
func NewPatchRepository(db *gorm.DB) PatchRepository {
	return &patchRepository{db: db}
}

func (r *patchRepository) Create(ctx context.Context, patch *models.Patch) error {
	if err := r.db.WithContext(ctx).Create(patch).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("patch-already-exists-error-id", "A patch already exists for this submission")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *patchRepository) GetByNumber(ctx context.Context, number uint) (*models.Patch, error) {
	var patch models.Patch
	err := cache.Aside(ctx, cache.PatchKey(number), &patch, cache.PatchTTL, func() error {
		return wrap(r.db.WithContext(ctx).First(&patch, "patch_number = ?", number).Error, "Patch", number)
	})
	if err != nil {
		return nil, err
	}
	return &patch, nil
}

func (r *patchRepository) GetByNumbers(ctx context.Context, numbers []uint) ([]models.Patch, error) {
	if len(numbers) == 0 {
		return []models.Patch{}, nil
	}
	var patches []models.Patch
	if err := r.db.WithContext(ctx).Where("patch_number IN ?", numbers).Find(&patches).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return patches, nil
}

func (r *patchRepository) Exists(ctx context.Context, number uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Patch{}).Where("patch_number = ?", number).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *patchRepository) List(ctx context.Context, skip, take int) ([]models.Patch, error) {
	var patches []models.Patch
	if err := r.db.WithContext(ctx).
		Order("patch_number ASC").
		Offset(skip).Limit(take).
		Find(&patches).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return patches, nil
}

func (r *patchRepository) Search(ctx context.Context, filter PatchFilter, skip, take int) ([]models.Patch, error) {
	q := r.db.WithContext(ctx).Model(&models.Patch{})
	for column, term := range map[string]string{
		"name":        filter.Name,
		"description": filter.Description,
		"maker":       filter.Maker,
		"section":     filter.Section,
	} {
		if term = strings.TrimSpace(term); term != "" {
			q = q.Where(column+" LIKE ? ESCAPE '!'", "%"+escapeLike(term)+"%")
		}
	}
	if code := strings.TrimSpace(filter.UniversityCode); code != "" {
		q = q.Where("university_code = ?", code)
	}

	var patches []models.Patch
	if err := q.Order("patch_number ASC").Offset(skip).Limit(take).Find(&patches).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return patches, nil
}

func (r *patchRepository) Save(ctx context.Context, patch *models.Patch) error {
	if err := r.db.WithContext(ctx).Save(patch).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePatch(ctx, patch.PatchNumber)
	return nil
}

func (r *patchRepository) Delete(ctx context.Context, number uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Patch{}, "patch_number = ?", number)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Patch", number)
	}
	cache.InvalidatePatch(ctx, number)
	return nil
}

// likeEscaper escapes LIKE wildcards with '!'. A backslash escape would be
// read as a string escape by MySQL.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike makes term match literally inside a LIKE pattern.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
