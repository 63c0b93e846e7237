package service

import (
	"context"
	"errors"
	"path"

	"patchdb/internal/featureflags"
	"patchdb/internal/middleware"
	"patchdb/internal/models"
	"patchdb/internal/notifications"
	"patchdb/internal/observability"
	"patchdb/internal/patchindex"
	"patchdb/internal/repository"
	"patchdb/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OwnedMatch is a similarity hit on a patch already in the caller's collection.
type OwnedMatch struct {
	UserPatch  models.UserPatch `json:"userPatch"`
	Similarity float64          `json:"similarity"`
}

// NewMatch is a similarity hit on a catalogue patch the caller does not own yet.
type NewMatch struct {
	Patch      models.Patch `json:"patch"`
	Similarity float64      `json:"similarity"`
}

// UploadResult is the response to a collection photo upload.
type UploadResult struct {
	Upload       models.UserPatchUpload `json:"upload"`
	OwnedMatches []OwnedMatch           `json:"ownedMatches"`
	NewMatches   []NewMatch             `json:"newMatches"`
}

// UserPatchService manages personal collections.
type UserPatchService struct {
	db            *gorm.DB
	store         storage.Store
	index         patchindex.Client
	flags         *featureflags.Manager
	notifier      *notifications.Notifier
	maxImageBytes int64
}

// NewUserPatchService returns a new UserPatchService.
func NewUserPatchService(
	db *gorm.DB,
	store storage.Store,
	index patchindex.Client,
	flags *featureflags.Manager,
	notifier *notifications.Notifier,
	maxImageBytes int64,
) *UserPatchService {
	return &UserPatchService{
		db:            db,
		store:         store,
		index:         index,
		flags:         flags,
		notifier:      notifier,
		maxImageBytes: maxImageBytes,
	}
}

// Upload records a collection photo and looks for catalogue patches resembling it.
func (s *UserPatchService) Upload(ctx context.Context, userID uuid.UUID, fileID string) (*UploadResult, error) {
	key, err := resolveUserFile(ctx, s.store, userID, fileID)
	if err != nil {
		return nil, err
	}

	repo := repository.NewUserPatchRepository(s.db)
	upload := &models.UserPatchUpload{UserID: userID, FileKey: key}
	if err := repo.CreateUpload(ctx, upload); err != nil {
		return nil, err
	}
	upload.ImageURL = presignedURL(ctx, s.store, upload.FileKey)

	result := &UploadResult{Upload: *upload, OwnedMatches: []OwnedMatch{}, NewMatches: []NewMatch{}}
	if !s.flags.Enabled(featureflags.UploadSimilaritySearch, userID) {
		return result, nil
	}

	image, err := storage.ReadAll(ctx, s.store, key, s.maxImageBytes)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	matches, err := s.index.Search(ctx, image, path.Base(key))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(matches) == 0 {
		return result, nil
	}

	numbers := make([]uint, len(matches))
	for i, m := range matches {
		numbers[i] = m.ID
	}
	owned, err := repo.ListByUserAndNumbers(ctx, userID, numbers)
	if err != nil {
		return nil, err
	}
	ownedByNumber := make(map[uint]models.UserPatch, len(owned))
	for _, up := range owned {
		ownedByNumber[up.PatchNumber] = up
	}

	var missing []uint
	for _, n := range numbers {
		if _, ok := ownedByNumber[n]; !ok {
			missing = append(missing, n)
		}
	}
	patches, err := repository.NewPatchRepository(s.db).GetByNumbers(ctx, missing)
	if err != nil {
		return nil, err
	}
	catalogue := make(map[uint]models.Patch, len(patches))
	for _, p := range patches {
		catalogue[p.PatchNumber] = p
	}

	for _, m := range matches {
		if up, ok := ownedByNumber[m.ID]; ok {
			s.decorateUserPatch(ctx, &up)
			result.OwnedMatches = append(result.OwnedMatches, OwnedMatch{UserPatch: up, Similarity: m.Score})
			observability.UploadMatches.WithLabelValues("owned").Inc()
			continue
		}
		if p, ok := catalogue[m.ID]; ok {
			p.ImageURL = presignedURL(ctx, s.store, p.FileKey)
			result.NewMatches = append(result.NewMatches, NewMatch{Patch: p, Similarity: m.Score})
			observability.UploadMatches.WithLabelValues("new").Inc()
			continue
		}
		observability.UploadMatches.WithLabelValues("unknown").Inc()
	}
	return result, nil
}

// UpdatePatchUploadMatch attaches the upload to the caller's entry for patchNumber,
// creating the entry when needed. A previously matched upload moves to the new entry.
func (s *UserPatchService) UpdatePatchUploadMatch(ctx context.Context, userID, uploadID uuid.UUID, patchNumber uint) (*models.UserPatch, error) {
	var entryID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := matchUpload(ctx, tx, userID, uploadID, patchNumber)
		if err != nil {
			return err
		}
		entryID = entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadUserPatch(ctx, userID, entryID, patchNumber)
}

func matchUpload(ctx context.Context, tx *gorm.DB, userID, uploadID uuid.UUID, patchNumber uint) (*models.UserPatch, error) {
	repo := repository.NewUserPatchRepository(tx)
	if _, err := repo.GetUpload(ctx, userID, uploadID); err != nil {
		return nil, err
	}
	exists, err := repository.NewPatchRepository(tx).Exists(ctx, patchNumber)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NewNotFoundError("Patch", patchNumber)
	}
	entry, err := repo.FindOrCreate(ctx, userID, patchNumber)
	if err != nil {
		return nil, err
	}
	if err := repo.SetUploadMatch(ctx, uploadID, &entry.ID); err != nil {
		return nil, err
	}
	return entry, nil
}

// LinkSubmission attaches a freshly published submission's photo to the submitter's
// collection. The submission's upload is reused when it has one.
func (s *UserPatchService) LinkSubmission(ctx context.Context, job *models.CollectionLinkJob) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uploadID := job.UserPatchUploadID
		if uploadID == nil {
			upload := &models.UserPatchUpload{UserID: job.UserID, FileKey: job.FileKey}
			if err := repository.NewUserPatchRepository(tx).CreateUpload(ctx, upload); err != nil {
				return err
			}
			uploadID = &upload.ID

			subRepo := repository.NewPatchSubmissionRepository(tx)
			sub, err := subRepo.GetByID(ctx, job.PatchSubmissionID)
			if err != nil {
				return err
			}
			sub.UserPatchUploadID = uploadID
			if err := subRepo.Save(ctx, sub); err != nil {
				return err
			}
		}
		_, err := matchUpload(ctx, tx, job.UserID, *uploadID, job.PatchNumber)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.notifier.PublishUser(ctx, job.UserID, notifications.EventCollectionLinked, map[string]any{
		"patchNumber": job.PatchNumber,
	}); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to publish collection notification", "error", err)
	}
	return nil
}

// GetUserPatches returns a user's whole collection with uploads.
func (s *UserPatchService) GetUserPatches(ctx context.Context, userID uuid.UUID) ([]models.UserPatch, error) {
	entries, err := repository.NewUserPatchRepository(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		s.decorateUserPatch(ctx, &entries[i])
	}
	return entries, nil
}

// GetUnmatchedUploads returns the user's uploads not attached to any entry.
func (s *UserPatchService) GetUnmatchedUploads(ctx context.Context, userID uuid.UUID) ([]models.UserPatchUpload, error) {
	uploads, err := repository.NewUserPatchRepository(s.db).ListUnmatched(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range uploads {
		uploads[i].ImageURL = presignedURL(ctx, s.store, uploads[i].FileKey)
	}
	return uploads, nil
}

// SetFavorite marks one of the caller's entries.
func (s *UserPatchService) SetFavorite(ctx context.Context, userID, userPatchID uuid.UUID, favorite bool) (*models.UserPatch, error) {
	repo := repository.NewUserPatchRepository(s.db)
	entry, err := repo.GetByID(ctx, userID, userPatchID)
	if err != nil {
		return nil, err
	}
	if err := repo.SetFavorite(ctx, userPatchID, favorite); err != nil {
		return nil, err
	}
	return s.loadUserPatch(ctx, userID, entry.ID, entry.PatchNumber)
}

func (s *UserPatchService) loadUserPatch(ctx context.Context, userID, entryID uuid.UUID, patchNumber uint) (*models.UserPatch, error) {
	entries, err := repository.NewUserPatchRepository(s.db).ListByUserAndNumbers(ctx, userID, []uint{patchNumber})
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == entryID {
			s.decorateUserPatch(ctx, &entries[i])
			return &entries[i], nil
		}
	}
	return nil, models.NewNotFoundError("UserPatch", entryID)
}

func (s *UserPatchService) decorateUserPatch(ctx context.Context, up *models.UserPatch) {
	if up.Patch != nil {
		up.Patch.IsOwned = true
		up.Patch.ImageURL = presignedURL(ctx, s.store, up.Patch.FileKey)
	}
	for i := range up.Uploads {
		up.Uploads[i].ImageURL = presignedURL(ctx, s.store, up.Uploads[i].FileKey)
	}
}

// isPermanentLinkError reports whether retrying a link job cannot help.
func isPermanentLinkError(err error) bool {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == models.KindNotFound
}
