package repository

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"patchdb/internal/models"

	"gorm.io/gorm"
)

// ErrNoJob is returned by ClaimNext when nothing is due.
var ErrNoJob = errors.New("no collection link job due")

// LinkJobRepository is the outbox of collection-link jobs.
type LinkJobRepository interface {
	Enqueue(ctx context.Context, job *models.CollectionLinkJob) error
	ClaimNext(ctx context.Context, now time.Time) (*models.CollectionLinkJob, error)
	MarkDone(ctx context.Context, id uint) error
	MarkRetry(ctx context.Context, id uint, errMsg string, next time.Time) error
	MarkFailed(ctx context.Context, id uint, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
	RetryFailed(ctx context.Context) (int64, error)
	ListByStatus(ctx context.Context, status models.LinkJobStatus, limit int) ([]models.CollectionLinkJob, error)
}

type linkJobRepository struct {
	db *gorm.DB
}

// NewLinkJobRepository returns a gorm-backed LinkJobRepository.
func NewLinkJobRepository(db *gorm.DB) LinkJobRepository {
	return &linkJobRepository{db: db}
}

func (r *linkJobRepository) Enqueue(ctx context.Context, job *models.CollectionLinkJob) error {
	job.Status = models.LinkJobQueued
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *linkJobRepository) ClaimNext(ctx context.Context, now time.Time) (*models.CollectionLinkJob, error) {
	now = now.UTC()
	if r.db.Name() == "postgres" {
		var claimed models.CollectionLinkJob
		err := r.db.WithContext(ctx).Raw(`
WITH picked AS (
	SELECT id
	FROM collection_link_jobs
	WHERE status = ? AND next_attempt_at <= ?
	ORDER BY next_attempt_at, id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE collection_link_jobs j
SET status = ?,
    processing_started_at = NOW(),
    attempts = j.attempts + 1,
    updated_at = NOW()
FROM picked
WHERE j.id = picked.id
RETURNING j.*
`, models.LinkJobQueued, now, models.LinkJobProcessing).Scan(&claimed).Error
		if err != nil {
			return nil, err
		}
		if claimed.ID == 0 {
			return nil, ErrNoJob
		}
		return &claimed, nil
	}

	// Elsewhere the guarded status update keeps two claimers from taking the same row.
	var claimed models.CollectionLinkJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND next_attempt_at <= ?", models.LinkJobQueued, now).
			Order("next_attempt_at ASC, id ASC").
			First(&claimed).Error; err != nil {
			return err
		}
		res := tx.Model(&models.CollectionLinkJob{}).
			Where("id = ? AND status = ?", claimed.ID, models.LinkJobQueued).
			Updates(map[string]interface{}{
				"status":                models.LinkJobProcessing,
				"processing_started_at": time.Now().UTC(),
				"attempts":              gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&claimed, claimed.ID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (r *linkJobRepository) MarkDone(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.CollectionLinkJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                models.LinkJobDone,
			"last_error":            "",
			"processing_started_at": nil,
		}).Error
}

func (r *linkJobRepository) MarkRetry(ctx context.Context, id uint, errMsg string, next time.Time) error {
	return r.db.WithContext(ctx).Model(&models.CollectionLinkJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                models.LinkJobQueued,
			"last_error":            truncateError(errMsg),
			"next_attempt_at":       next.UTC(),
			"processing_started_at": nil,
		}).Error
}

func (r *linkJobRepository) MarkFailed(ctx context.Context, id uint, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.CollectionLinkJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                models.LinkJobFailed,
			"last_error":            truncateError(errMsg),
			"processing_started_at": nil,
		}).Error
}

func (r *linkJobRepository) RequeueStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&models.CollectionLinkJob{}).
		Where("status = ? AND processing_started_at IS NOT NULL AND processing_started_at < ?", models.LinkJobProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":                models.LinkJobQueued,
			"processing_started_at": nil,
		})
	return res.RowsAffected, res.Error
}

// RetryFailed requeues every failed job with a fresh attempt budget.
func (r *linkJobRepository) RetryFailed(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.CollectionLinkJob{}).
		Where("status = ?", models.LinkJobFailed).
		Updates(map[string]interface{}{
			"status":          models.LinkJobQueued,
			"attempts":        0,
			"next_attempt_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *linkJobRepository) ListByStatus(ctx context.Context, status models.LinkJobStatus, limit int) ([]models.CollectionLinkJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.CollectionLinkJob
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

const maxLastErrorBytes = 4000

// truncateError caps msg at maxLastErrorBytes without splitting a rune.
func truncateError(msg string) string {
	if len(msg) <= maxLastErrorBytes {
		return msg
	}
	cut := maxLastErrorBytes
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
