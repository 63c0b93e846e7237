package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"patchdb/internal/middleware"
	"patchdb/internal/models"
	"patchdb/internal/notifications"
	"patchdb/internal/observability"
	"patchdb/internal/patchindex"
	"patchdb/internal/repository"
	"patchdb/internal/storage"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UploadPatchInput describes a new submission. FileID names an object the
// caller already uploaded under their own prefix.
type UploadPatchInput struct {
	FileID            string          `json:"fileId"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Maker             string          `json:"maker"`
	UniversityCode    string          `json:"universityCode"`
	Section           string          `json:"section"`
	ReleaseDate       *datatypes.Date `json:"releaseDate"`
	UserPatchUploadID *uuid.UUID      `json:"userPatchUploadId"`
}

// UpdatePatchSubmissionInput changes a submission. Blank text fields are left untouched.
type UpdatePatchSubmissionInput struct {
	ID             uuid.UUID                `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	Maker          string                   `json:"maker"`
	UniversityCode string                   `json:"universityCode"`
	Section        string                   `json:"section"`
	ReleaseDate    *datatypes.Date          `json:"releaseDate"`
	Status         *models.SubmissionStatus `json:"status"`
}

// PatchSubmissionService drives the submission lifecycle and its publication into the catalogue.
type PatchSubmissionService struct {
	db            *gorm.DB
	store         storage.Store
	index         patchindex.Client
	universities  *UniversityDirectory
	notifier      *notifications.Notifier
	maxImageBytes int64
}

// NewPatchSubmissionService returns a new PatchSubmissionService. Repositories are
// built per call so that a publish can run them inside one transaction.
func NewPatchSubmissionService(
	db *gorm.DB,
	store storage.Store,
	index patchindex.Client,
	universities *UniversityDirectory,
	notifier *notifications.Notifier,
	maxImageBytes int64,
) *PatchSubmissionService {
	return &PatchSubmissionService{
		db:            db,
		store:         store,
		index:         index,
		universities:  universities,
		notifier:      notifier,
		maxImageBytes: maxImageBytes,
	}
}

// UploadPatch records a new unpublished submission.
func (s *PatchSubmissionService) UploadPatch(ctx context.Context, userID uuid.UUID, in UploadPatchInput) (*models.PatchSubmission, error) {
	key, err := resolveUserFile(ctx, s.store, userID, in.FileID)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(in.UniversityCode)
	if code != "" {
		if code, err = s.universities.Canonical(code); err != nil {
			return nil, err
		}
	}

	if in.UserPatchUploadID != nil {
		if _, err := repository.NewUserPatchRepository(s.db).GetUpload(ctx, userID, *in.UserPatchUploadID); err != nil {
			return nil, err
		}
	}

	sub := &models.PatchSubmission{
		FileKey:             key,
		UserPatchUploadID:   in.UserPatchUploadID,
		Name:                strings.TrimSpace(in.Name),
		Description:         strings.TrimSpace(in.Description),
		Maker:               strings.TrimSpace(in.Maker),
		UniversityCode:      code,
		Section:             strings.TrimSpace(in.Section),
		ReleaseDate:         in.ReleaseDate,
		Status:              models.SubmissionUnpublished,
		UploadedByUserID:    userID,
		LastUpdatedByUserID: userID,
	}
	if err := repository.NewPatchSubmissionRepository(s.db).Create(ctx, sub); err != nil {
		return nil, err
	}
	observability.SubmissionTransitions.WithLabelValues("upload").Inc()
	sub.ImageURL = presignedURL(ctx, s.store, sub.FileKey)
	return sub, nil
}

// ValidateCanUpdatePatch reports whether the caller may modify sub.
func ValidateCanUpdatePatch(sub *models.PatchSubmission, userID uuid.UUID, role models.UserRole) error {
	if role.AtLeast(models.RoleModerator) {
		return nil
	}
	if sub.UploadedByUserID != userID {
		return models.NewUnauthorizedError("Only the uploader or a moderator can update this submission")
	}
	if sub.Status == models.SubmissionRejected || sub.Status == models.SubmissionDuplicate {
		return models.NewUnauthorizedError("A " + string(sub.Status) + " submission can no longer be updated")
	}
	return nil
}

type transition string

const (
	transitionNone      transition = "update"
	transitionPublish   transition = "publish"
	transitionUnpublish transition = "unpublish"
	transitionRepublish transition = "republish"
)

// Update merges in into the submission and applies any resulting publication change.
// First-time publication, un-publication and re-publication each run in one transaction.
func (s *PatchSubmissionService) Update(ctx context.Context, userID uuid.UUID, role models.UserRole, in UpdatePatchSubmissionInput) (*models.PatchSubmission, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, models.NewValidationError("Unknown status " + string(*in.Status))
	}

	var (
		result     *models.PatchSubmission
		kind       transition
		unindexNum uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subRepo := repository.NewPatchSubmissionRepository(tx)
		sub, err := subRepo.GetByID(ctx, in.ID)
		if err != nil {
			return err
		}
		if err := ValidateCanUpdatePatch(sub, userID, role); err != nil {
			return err
		}
		if err := s.merge(sub, in); err != nil {
			return err
		}
		sub.LastUpdatedByUserID = userID

		switch {
		case sub.PatchNumber == nil && sub.Status == models.SubmissionPublished:
			kind = transitionPublish
			err = s.publish(ctx, tx, sub)
		case sub.PatchNumber != nil && sub.Status != models.SubmissionPublished:
			kind = transitionUnpublish
			unindexNum = *sub.PatchNumber
			err = s.unpublish(ctx, tx, sub)
		case sub.PatchNumber != nil:
			kind = transitionRepublish
			err = s.republish(ctx, tx, sub)
		default:
			kind = transitionNone
			err = subRepo.Save(ctx, sub)
		}
		if err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.SubmissionTransitions.WithLabelValues(string(kind)).Inc()
	switch kind {
	case transitionPublish:
		middleware.Logger.InfoContext(ctx, "Patch published",
			"patch_number", *result.PatchNumber, "submission_id", result.ID)
		if err := s.notifier.PublishUser(ctx, result.UploadedByUserID, notifications.EventPatchPublished, map[string]any{
			"patchNumber":  *result.PatchNumber,
			"submissionId": result.ID,
		}); err != nil {
			middleware.Logger.WarnContext(ctx, "Failed to publish patch notification", "error", err)
		}
	case transitionUnpublish:
		middleware.Logger.InfoContext(ctx, "Patch unpublished",
			"patch_number", unindexNum, "submission_id", result.ID, "status", result.Status)
	}

	result.ImageURL = presignedURL(ctx, s.store, result.FileKey)
	return result, nil
}

func (s *PatchSubmissionService) merge(sub *models.PatchSubmission, in UpdatePatchSubmissionInput) error {
	if v := strings.TrimSpace(in.Name); v != "" {
		sub.Name = v
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		sub.Description = v
	}
	if v := strings.TrimSpace(in.Maker); v != "" {
		sub.Maker = v
	}
	if v := strings.TrimSpace(in.Section); v != "" {
		sub.Section = v
	}
	if v := strings.TrimSpace(in.UniversityCode); v != "" {
		code, err := s.universities.Canonical(v)
		if err != nil {
			return err
		}
		sub.UniversityCode = code
	}
	if in.ReleaseDate != nil {
		sub.ReleaseDate = in.ReleaseDate
	}
	if in.Status != nil {
		sub.Status = *in.Status
	}
	return nil
}

func (s *PatchSubmissionService) publish(ctx context.Context, tx *gorm.DB, sub *models.PatchSubmission) error {
	if strings.TrimSpace(sub.Name) == "" {
		return models.NewBadRequestError(models.ErrIDPatchNameRequired, "A patch needs a name before it can be published")
	}

	subRepo := repository.NewPatchSubmissionRepository(tx)
	if err := subRepo.Save(ctx, sub); err != nil {
		return err
	}

	patch := &models.Patch{}
	patch.CopyFromSubmission(sub)
	if err := repository.NewPatchRepository(tx).Create(ctx, patch); err != nil {
		return err
	}

	sub.PatchNumber = &patch.PatchNumber
	if err := subRepo.Save(ctx, sub); err != nil {
		return err
	}

	if err := repository.NewLinkJobRepository(tx).Enqueue(ctx, &models.CollectionLinkJob{
		PatchSubmissionID: sub.ID,
		UserID:            sub.UploadedByUserID,
		PatchNumber:       patch.PatchNumber,
		FileKey:           sub.FileKey,
		UserPatchUploadID: sub.UserPatchUploadID,
	}); err != nil {
		return err
	}

	image, err := storage.ReadAll(ctx, s.store, sub.FileKey, s.maxImageBytes)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.NewNotFoundError("File", sub.FileKey)
		}
		return models.NewInternalError(err)
	}
	if err := s.index.Index(ctx, patch.PatchNumber, image, path.Base(sub.FileKey)); err != nil {
		return models.NewInternalError(fmt.Errorf("index patch %d: %w", patch.PatchNumber, err))
	}
	return nil
}

func (s *PatchSubmissionService) unpublish(ctx context.Context, tx *gorm.DB, sub *models.PatchSubmission) error {
	number := *sub.PatchNumber

	detached, err := repository.NewUserPatchRepository(tx).DetachPatch(ctx, number)
	if err != nil {
		return err
	}
	if err := repository.NewPatchRepository(tx).Delete(ctx, number); err != nil {
		return err
	}
	sub.PatchNumber = nil
	if err := repository.NewPatchSubmissionRepository(tx).Save(ctx, sub); err != nil {
		return err
	}
	if detached > 0 {
		middleware.Logger.InfoContext(ctx, "Detached patch from collections",
			"patch_number", number, "entries", detached)
	}

	if err := s.index.Delete(ctx, number); err != nil {
		return models.NewInternalError(fmt.Errorf("unindex patch %d: %w", number, err))
	}
	return nil
}

func (s *PatchSubmissionService) republish(ctx context.Context, tx *gorm.DB, sub *models.PatchSubmission) error {
	if err := repository.NewPatchSubmissionRepository(tx).Save(ctx, sub); err != nil {
		return err
	}
	patchRepo := repository.NewPatchRepository(tx)
	patch, err := patchRepo.GetByNumber(ctx, *sub.PatchNumber)
	if err != nil {
		return err
	}
	patch.CopyFromSubmission(sub)
	return patchRepo.Save(ctx, patch)
}

// GetUnpublishedSubmissions lists the moderation queue.
func (s *PatchSubmissionService) GetUnpublishedSubmissions(ctx context.Context, skip, take int) ([]models.PatchSubmission, error) {
	skip, take = clampPage(skip, take)
	subs, err := repository.NewPatchSubmissionRepository(s.db).ListByStatus(ctx, models.SubmissionUnpublished, skip, take)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, subs)
	return subs, nil
}

// GetPatchSubmission returns one submission.
// GetPatchSubmissionFor returns the submission if the requester uploaded it
// or is a moderator.
func (s *PatchSubmissionService) GetPatchSubmissionFor(ctx context.Context, id, requesterID uuid.UUID, role models.UserRole) (*models.PatchSubmission, error) {
	sub, err := s.GetPatchSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(models.RoleModerator) && sub.UploadedByUserID != requesterID {
		return nil, models.NewForbiddenError("Only the uploader or a moderator can view this submission")
	}
	return sub, nil
}

func (s *PatchSubmissionService) GetPatchSubmission(ctx context.Context, id uuid.UUID) (*models.PatchSubmission, error) {
	sub, err := repository.NewPatchSubmissionRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.ImageURL = presignedURL(ctx, s.store, sub.FileKey)
	return sub, nil
}

// GetMySubmissions lists the caller's submissions, newest first.
func (s *PatchSubmissionService) GetMySubmissions(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.PatchSubmission, error) {
	skip, take = clampPage(skip, take)
	subs, err := repository.NewPatchSubmissionRepository(s.db).ListByUploader(ctx, userID, skip, take)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, subs)
	return subs, nil
}

func (s *PatchSubmissionService) decorate(ctx context.Context, subs []models.PatchSubmission) {
	for i := range subs {
		subs[i].ImageURL = presignedURL(ctx, s.store, subs[i].FileKey)
	}
}
