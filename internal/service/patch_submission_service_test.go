package service

import (
	"context"
	"errors"
	"testing"

	"patchdb/internal/models"
	"patchdb/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadSubmission(t *testing.T, env *testEnv, owner *models.User, name string) *models.PatchSubmission {
	t.Helper()
	sub, err := env.submissions.UploadPatch(context.Background(), owner.ID, UploadPatchInput{
		FileID:         env.putUserFile(t, owner.ID),
		Name:           name,
		Maker:          "Studenterhuset",
		UniversityCode: "dtu",
	})
	require.NoError(t, err)
	return sub
}

func TestPatchSubmissionService_EndToEndPublishAndLink(t *testing.T) {
	env := newTestEnv(t, "upload_similarity_search=on")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	moderator := testutil.CreateUser(t, env.db, models.RoleModerator)

	sub := uploadSubmission(t, env, owner, "DTU Software")
	assert.Equal(t, models.SubmissionUnpublished, sub.Status)
	assert.Equal(t, "DTU", sub.UniversityCode)
	assert.NotEmpty(t, sub.ImageURL)

	published, err := env.submissions.Update(ctx, moderator.ID, moderator.Role, UpdatePatchSubmissionInput{
		ID:     sub.ID,
		Status: statusPtr(models.SubmissionPublished),
	})
	require.NoError(t, err)
	require.NotNil(t, published.PatchNumber)
	assert.Equal(t, uint(1), *published.PatchNumber)
	assert.Equal(t, moderator.ID, published.LastUpdatedByUserID)

	assert.Equal(t, []uint{1}, env.index.Indexed)
	assert.EqualValues(t, 1, env.count(t, &models.Patch{}, ""))
	assert.EqualValues(t, 1, env.count(t, &models.CollectionLinkJob{}, "status = ?", models.LinkJobQueued))

	patch, err := env.patches.GetPatch(ctx, 1, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "DTU Software", patch.Name)
	assert.Equal(t, sub.ID, patch.PatchSubmissionID)
	assert.False(t, patch.IsOwned)

	processed, err := env.linker.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	collection, err := env.collections.GetUserPatches(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, collection, 1)
	assert.Equal(t, uint(1), collection[0].PatchNumber)
	require.Len(t, collection[0].Uploads, 1)
	assert.Equal(t, sub.FileKey, collection[0].Uploads[0].FileKey)

	reloaded, err := env.submissions.GetPatchSubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.UserPatchUploadID)
	assert.Equal(t, collection[0].Uploads[0].ID, *reloaded.UserPatchUploadID)

	patch, err = env.patches.GetPatch(ctx, 1, owner.ID)
	require.NoError(t, err)
	assert.True(t, patch.IsOwned)
}

func TestPatchSubmissionService_PublishRequiresName(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	moderator := testutil.CreateUser(t, env.db, models.RoleModerator)
	sub := uploadSubmission(t, env, owner, "")

	_, err := env.submissions.Update(ctx, moderator.ID, moderator.Role, UpdatePatchSubmissionInput{
		ID:     sub.ID,
		Name:   "   ",
		Status: statusPtr(models.SubmissionPublished),
	})
	assertAppError(t, err, models.KindBadRequest, models.ErrIDPatchNameRequired)

	assert.EqualValues(t, 0, env.count(t, &models.Patch{}, ""))
	assert.EqualValues(t, 0, env.count(t, &models.CollectionLinkJob{}, ""))
	assert.Zero(t, env.index.IndexCalls())

	reloaded, err := env.submissions.GetPatchSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionUnpublished, reloaded.Status)
	assert.Nil(t, reloaded.PatchNumber)
}

func TestPatchSubmissionService_IndexFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	moderator := testutil.CreateUser(t, env.db, models.RoleAdmin)
	sub := uploadSubmission(t, env, owner, "KU Physics")
	env.index.IndexErr = errors.New("index unavailable")

	_, err := env.submissions.Update(ctx, moderator.ID, moderator.Role, UpdatePatchSubmissionInput{
		ID:     sub.ID,
		Status: statusPtr(models.SubmissionPublished),
	})
	assertAppError(t, err, models.KindInternal, models.ErrIDUnhandled)

	assert.EqualValues(t, 0, env.count(t, &models.Patch{}, ""))
	assert.EqualValues(t, 0, env.count(t, &models.CollectionLinkJob{}, ""))
	reloaded, err := env.submissions.GetPatchSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionUnpublished, reloaded.Status)
	assert.Nil(t, reloaded.PatchNumber)
}

func TestPatchSubmissionService_UnpublishDeletesAndUnindexes(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	moderator := testutil.CreateUser(t, env.db, models.RoleModerator)
	sub := uploadSubmission(t, env, owner, "DTU Physics")

	published, err := env.submissions.Update(ctx, moderator.ID, moderator.Role, UpdatePatchSubmissionInput{
		ID: sub.ID, Status: statusPtr(models.SubmissionPublished),
	})
	require.NoError(t, err)
	number := *published.PatchNumber

	_, err = env.linker.ProcessNext(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.count(t, &models.UserPatch{}, ""))

	rejected, err := env.submissions.Update(ctx, moderator.ID, moderator.Role, UpdatePatchSubmissionInput{
		ID: sub.ID, Status: statusPtr(models.SubmissionRejected),
	})
	require.NoError(t, err)
	assert.Nil(t, rejected.PatchNumber)
	assert.Equal(t, models.SubmissionRejected, rejected.Status)
	assert.Equal(t, []uint{number}, env.index.Deleted)

	assert.EqualValues(t, 0, env.count(t, &models.Patch{}, ""))
	assert.EqualValues(t, 0, env.count(t, &models.UserPatch{}, ""))
	unmatched, err := env.collections.GetUnmatchedUploads(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, unmatched, 1)

	_, err = env.patches.GetPatch(ctx, number, owner.ID)
	assertAppError(t, err, models.KindNotFound, "patch-not-found-error-id")
}

func TestPatchSubmissionService_RepublishSyncsWithoutReindex(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	sub := uploadSubmission(t, env, owner, "Old name")

	_, err := env.submissions.Update(ctx, owner.ID, owner.Role, UpdatePatchSubmissionInput{
		ID: sub.ID, Status: statusPtr(models.SubmissionPublished),
	})
	require.NoError(t, err)

	updated, err := env.submissions.Update(ctx, owner.ID, owner.Role, UpdatePatchSubmissionInput{
		ID:          sub.ID,
		Name:        "New name",
		Description: "Second edition",
	})
	require.NoError(t, err)
	require.NotNil(t, updated.PatchNumber)

	patch, err := env.patches.GetPatch(ctx, *updated.PatchNumber, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, "New name", patch.Name)
	assert.Equal(t, "Second edition", patch.Description)
	assert.Equal(t, "Studenterhuset", patch.Maker)
	assert.Equal(t, 1, env.index.IndexCalls())
	assert.EqualValues(t, 1, env.count(t, &models.Patch{}, ""))
}

func TestPatchSubmissionService_UpdateMergeRules(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	sub := uploadSubmission(t, env, owner, "Keep me")

	_, err := env.submissions.Update(ctx, owner.ID, owner.Role, UpdatePatchSubmissionInput{
		ID: sub.ID, UniversityCode: "MIT",
	})
	assertAppError(t, err, models.KindBadRequest, models.ErrIDInvalidUniversityCode)

	updated, err := env.submissions.Update(ctx, owner.ID, owner.Role, UpdatePatchSubmissionInput{
		ID: sub.ID, Name: "  ", Section: "Software", UniversityCode: "ku",
	})
	require.NoError(t, err)
	assert.Equal(t, "Keep me", updated.Name)
	assert.Equal(t, "Software", updated.Section)
	assert.Equal(t, "KU", updated.UniversityCode)
	assert.Equal(t, models.SubmissionUnpublished, updated.Status)
}

func TestValidateCanUpdatePatch(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	other := uuid.New()

	tests := []struct {
		name    string
		status  models.SubmissionStatus
		caller  uuid.UUID
		role    models.UserRole
		wantErr bool
	}{
		{"moderator on foreign rejected", models.SubmissionRejected, other, models.RoleModerator, false},
		{"admin on foreign duplicate", models.SubmissionDuplicate, other, models.RoleAdmin, false},
		{"owner on unpublished", models.SubmissionUnpublished, owner, models.RoleUser, false},
		{"owner on published", models.SubmissionPublished, owner, models.RolePatchMaker, false},
		{"owner on rejected", models.SubmissionRejected, owner, models.RoleUser, true},
		{"owner on duplicate", models.SubmissionDuplicate, owner, models.RoleUser, true},
		{"stranger", models.SubmissionUnpublished, other, models.RolePatchMaker, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sub := &models.PatchSubmission{UploadedByUserID: owner, Status: tt.status}
			err := ValidateCanUpdatePatch(sub, tt.caller, tt.role)
			if tt.wantErr {
				assert.True(t, models.IsKind(err, models.KindUnauthorized))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPatchSubmissionService_UploadPreconditions(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	stranger := testutil.CreateUser(t, env.db, models.RoleUser)

	_, err := env.submissions.UploadPatch(ctx, owner.ID, UploadPatchInput{FileID: "missing.png", Name: "x"})
	assertAppError(t, err, models.KindNotFound, models.ErrIDFileNotFound)

	// A file under someone else's prefix does not count.
	foreign := env.putUserFile(t, stranger.ID)
	_, err = env.submissions.UploadPatch(ctx, owner.ID, UploadPatchInput{FileID: foreign, Name: "x"})
	assertAppError(t, err, models.KindNotFound, models.ErrIDFileNotFound)

	_, err = env.submissions.UploadPatch(ctx, owner.ID, UploadPatchInput{FileID: "../etc/passwd"})
	assertAppError(t, err, models.KindBadRequest, models.ErrIDValidation)

	_, err = env.submissions.UploadPatch(ctx, owner.ID, UploadPatchInput{
		FileID: env.putUserFile(t, owner.ID), UniversityCode: "NOPE",
	})
	assertAppError(t, err, models.KindBadRequest, models.ErrIDInvalidUniversityCode)

	strangerUpload, err := env.collections.Upload(ctx, stranger.ID, env.putUserFile(t, stranger.ID))
	require.NoError(t, err)
	uploadID := strangerUpload.Upload.ID
	_, err = env.submissions.UploadPatch(ctx, owner.ID, UploadPatchInput{
		FileID: env.putUserFile(t, owner.ID), UserPatchUploadID: &uploadID,
	})
	assertAppError(t, err, models.KindNotFound, "user-patch-upload-not-found-error-id")
	assert.EqualValues(t, 0, env.count(t, &models.PatchSubmission{}, ""))
}

func TestPatchSubmissionService_Listings(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	other := testutil.CreateUser(t, env.db, models.RoleUser)

	first := uploadSubmission(t, env, owner, "First")
	uploadSubmission(t, env, owner, "Second")
	uploadSubmission(t, env, other, "Third")

	_, err := env.submissions.Update(ctx, owner.ID, owner.Role, UpdatePatchSubmissionInput{
		ID: first.ID, Status: statusPtr(models.SubmissionPublished),
	})
	require.NoError(t, err)

	queue, err := env.submissions.GetUnpublishedSubmissions(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, queue, 2)
	for _, s := range queue {
		assert.Equal(t, models.SubmissionUnpublished, s.Status)
		assert.NotEmpty(t, s.ImageURL)
	}

	mine, err := env.submissions.GetMySubmissions(ctx, owner.ID, 0, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = env.submissions.GetPatchSubmission(ctx, uuid.New())
	assertAppError(t, err, models.KindNotFound, "patch-submission-not-found-error-id")
}

func TestPatchSubmissionService_GetPatchSubmissionFor(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, models.RoleUser)
	stranger := testutil.CreateUser(t, env.db, models.RoleUser)
	moderator := testutil.CreateUser(t, env.db, models.RoleModerator)
	sub := uploadSubmission(t, env, owner, "Owned")

	got, err := env.submissions.GetPatchSubmissionFor(ctx, sub.ID, owner.ID, owner.Role)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	got, err = env.submissions.GetPatchSubmissionFor(ctx, sub.ID, moderator.ID, moderator.Role)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = env.submissions.GetPatchSubmissionFor(ctx, sub.ID, stranger.ID, stranger.Role)
	assertAppError(t, err, models.KindForbidden, models.ErrIDForbidden)

	_, err = env.submissions.GetPatchSubmissionFor(ctx, uuid.New(), owner.ID, owner.Role)
	assertAppError(t, err, models.KindNotFound, "patch-submission-not-found-error-id")
}
