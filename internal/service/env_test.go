package service

import (
	"errors"
	"testing"

	"patchdb/internal/config"
	"patchdb/internal/featureflags"
	"patchdb/internal/models"
	"patchdb/internal/repository"
	"patchdb/internal/storage"
	"patchdb/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testMaxImageBytes = 10 << 20

// testEnv wires every service over one in-memory database, store and index.
type testEnv struct {
	db           *gorm.DB
	store        *storage.MemoryStore
	index        *testutil.FakeIndex
	universities *UniversityDirectory

	submissions *PatchSubmissionService
	collections *UserPatchService
	patches     *PatchService
	following   *FollowingService
	users       *UserService
	files       *FileService
	linker      *CollectionLinker
}

func testUniversities() *UniversityDirectory {
	return NewUniversityDirectory([]config.University{
		{Code: "DTU", Name: "Technical University of Denmark", Programs: []string{"Software Technology", "Physics"}},
		{Code: "KU", Name: "University of Copenhagen"},
	})
}

func newTestEnv(t *testing.T, flags string) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	store := storage.NewMemoryStore("", storage.DefaultPresignExpiry)
	index := &testutil.FakeIndex{}
	universities := testUniversities()
	manager := featureflags.NewManager(flags)

	userRepo := repository.NewUserRepository(db)
	followingRepo := repository.NewFollowingRepository(db)
	collections := NewUserPatchService(db, store, index, manager, nil, testMaxImageBytes)

	return &testEnv{
		db:           db,
		store:        store,
		index:        index,
		universities: universities,
		submissions:  NewPatchSubmissionService(db, store, index, universities, nil, testMaxImageBytes),
		collections:  collections,
		patches:      NewPatchService(repository.NewPatchRepository(db), repository.NewUserPatchRepository(db), store),
		following:    NewFollowingService(followingRepo, userRepo, nil, store),
		users:        NewUserService(userRepo, followingRepo, universities, store),
		files:        NewFileService(store, testMaxImageBytes),
		linker:       NewCollectionLinker(repository.NewLinkJobRepository(db), collections, CollectionLinkerConfig{MaxAttempts: 3}),
	}
}

// putUserFile stores a small PNG under the user's prefix and returns its file id.
func (e *testEnv) putUserFile(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	fileID := uuid.NewString()
	e.store.Put(storage.UserFileKey(userID, fileID), testutil.TinyPNG(t, 4, 4), "image/png")
	return fileID
}

func (e *testEnv) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func assertAppError(t *testing.T, err error, kind models.ErrorKind, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, kind, appErr.Kind)
	if code != "" {
		assert.Equal(t, code, appErr.Code)
	}
}

func statusPtr(s models.SubmissionStatus) *models.SubmissionStatus {
	return &s
}
