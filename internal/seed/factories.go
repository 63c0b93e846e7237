// Package seed provides helpers to create demo data for the PatchDB database.
// These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"patchdb/internal/models"
	"patchdb/internal/repository"
	"patchdb/internal/storage"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account gets.
const DefaultPassword = "password123"

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db           *gorm.DB
	opts         Options
	rng          *rand.Rand
	passwordHash string
	follows      repository.FollowingRepository
	collections  repository.UserPatchRepository
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	f := &Factory{
		db:   db,
		opts: opts,
		//nolint:gosec // Weak random number generator is fine for seeding
		rng: rand.New(rand.NewSource(seed)),
	}
	if db != nil {
		f.follows = repository.NewFollowingRepository(db)
		f.collections = repository.NewUserPatchRepository(db)
	}
	return f
}

func (f *Factory) hashedPassword() (string, error) {
	if f.opts.SkipBcrypt {
		return DefaultPassword, nil
	}
	if f.passwordHash == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hash password: %w", err)
		}
		f.passwordHash = string(hash)
	}
	return f.passwordHash, nil
}

// BuildUser returns an unsaved user with fake profile data.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	username := strings.ToLower(gofakeit.Username())
	if len(username) > 24 {
		username = username[:24]
	}
	username = fmt.Sprintf("%s%d", username, gofakeit.Number(100, 99999))

	bio := gofakeit.Sentence(10)
	if len(bio) > models.MaxBioLength {
		bio = bio[:models.MaxBioLength]
	}
	email := gofakeit.Email()

	user := &models.User{
		Username: username,
		Bio:      &bio,
		Email:    &email,
		State:    models.UserStateActive,
		Role:     models.RoleUser,
	}
	if len(f.opts.Universities) > 0 {
		code := f.opts.Universities[f.rng.Intn(len(f.opts.Universities))]
		user.UniversityCode = &code
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser constructs and persists a sample user.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if user.PasswordHash == nil {
		hash, err := f.hashedPassword()
		if err != nil {
			return nil, err
		}
		user.PasswordHash = &hash
	}

	if f.opts.DryRun {
		user.ID = uuid.New()
		log.Printf("[dry-run] CreateUser: %s", user.Username)
		return user, nil
	}
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildSubmission returns an unsaved submission uploaded by user.
func (f *Factory) BuildSubmission(user *models.User, overrides ...func(*models.PatchSubmission)) *models.PatchSubmission {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 365
	}
	released := datatypes.Date(time.Now().AddDate(0, 0, -f.rng.Intn(maxDays)))

	sub := &models.PatchSubmission{
		FileKey:             storage.PatchFileKey(uuid.NewString() + ".png"),
		Name:                fmt.Sprintf("%s %s", gofakeit.AdjectiveDescriptive(), gofakeit.NounCommon()),
		Description:         gofakeit.Paragraph(1, 2, 8, " "),
		Maker:               gofakeit.Company(),
		Section:             gofakeit.JobDescriptor(),
		ReleaseDate:         &released,
		Status:              models.SubmissionUnpublished,
		UploadedByUserID:    user.ID,
		LastUpdatedByUserID: user.ID,
	}
	if user.UniversityCode != nil {
		sub.UniversityCode = *user.UniversityCode
	}
	for _, override := range overrides {
		override(sub)
	}
	return sub
}

// CreateSubmission persists an unpublished submission for user.
func (f *Factory) CreateSubmission(ctx context.Context, user *models.User, overrides ...func(*models.PatchSubmission)) (*models.PatchSubmission, error) {
	sub := f.BuildSubmission(user, overrides...)
	if f.opts.DryRun {
		sub.ID = uuid.New()
		return sub, nil
	}
	if err := f.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// Publish creates the canonical patch for sub and marks sub published.
func (f *Factory) Publish(ctx context.Context, sub *models.PatchSubmission) (*models.Patch, error) {
	patch := &models.Patch{}
	patch.CopyFromSubmission(sub)
	if f.opts.DryRun {
		return patch, nil
	}

	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(patch).Error; err != nil {
			return err
		}
		sub.PatchNumber = &patch.PatchNumber
		sub.Status = models.SubmissionPublished
		return tx.Save(sub).Error
	})
	if err != nil {
		return nil, err
	}
	return patch, nil
}

// Follow records that follower follows followee and keeps the counters in sync.
func (f *Factory) Follow(ctx context.Context, follower, followee *models.User) (bool, error) {
	if follower.ID == followee.ID || f.opts.DryRun {
		return false, nil
	}
	return f.follows.Follow(ctx, follower.ID, followee.ID)
}

// Collect adds patch to user's collection together with a matched upload.
func (f *Factory) Collect(ctx context.Context, user *models.User, patch *models.Patch, favorite bool) (*models.UserPatch, error) {
	if f.opts.DryRun {
		return &models.UserPatch{ID: uuid.New(), UserID: user.ID, PatchNumber: patch.PatchNumber, IsFavorite: favorite}, nil
	}

	entry, err := f.collections.FindOrCreate(ctx, user.ID, patch.PatchNumber)
	if err != nil {
		return nil, err
	}
	upload := &models.UserPatchUpload{
		UserID:      user.ID,
		UserPatchID: &entry.ID,
		FileKey:     storage.UserFileKey(user.ID, uuid.NewString()+".jpg"),
	}
	if err := f.collections.CreateUpload(ctx, upload); err != nil {
		return nil, err
	}
	if favorite {
		if err := f.collections.SetFavorite(ctx, entry.ID, true); err != nil {
			return nil, err
		}
		entry.IsFavorite = true
	}
	return entry, nil
}
