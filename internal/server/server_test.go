package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"patchdb/internal/config"
	"patchdb/internal/models"
	"patchdb/internal/patchindex"
	"patchdb/internal/service"
	"patchdb/internal/storage"
	"patchdb/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
)

func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	signingKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		signingKey = key
	})
	return signingKey
}

type testServer struct {
	*Server
	db    *gorm.DB
	store *storage.MemoryStore
	index *testutil.FakeIndex
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "test",
		FeatureFlags:         "upload_similarity_search=on",
		UploadMaxSizeMB:      10,
		LinkJobMaxAttempts:   3,
		LinkWorkerPollMillis: 10,
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	store := storage.NewMemoryStore("", storage.DefaultPresignExpiry)
	index := &testutil.FakeIndex{}
	universities := service.NewUniversityDirectory([]config.University{
		{Code: "DTU", Name: "Technical University of Denmark", Programs: []string{"Software Technology"}},
	})

	s, err := NewServerWithDeps(testConfig(), Deps{
		DB:           db,
		Store:        store,
		Index:        index,
		Universities: universities,
		Tokens:       service.NewTokenIssuer(testSigningKey(t), "patchdb-api", "patchdb-client", time.Hour),
	})
	require.NoError(t, err)
	return &testServer{Server: s, db: db, store: store, index: index}
}

// login creates a user with role and returns it with a bearer token.
func (ts *testServer) login(t *testing.T, role models.UserRole) (*models.User, string) {
	t.Helper()
	user := testutil.CreateUser(t, ts.db, role)
	token, _, err := ts.tokens.Issue(user, service.MethodPassword)
	require.NoError(t, err)
	return user, token
}

// putFile stores a PNG under the user's prefix and returns its file id.
func (ts *testServer) putFile(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	fileID := uuid.NewString() + ".png"
	ts.store.Put(storage.UserFileKey(userID, fileID), testutil.TinyPNG(t, 4, 4), "image/png")
	return fileID
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.App().Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func requireErrorID(t *testing.T, resp *http.Response, status int, errorID string) models.ErrorResponse {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	var body models.ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, errorID, body.ErrorID)
	return body
}

func TestNewServerWithDeps_RequiresInfrastructure(t *testing.T) {
	_, err := NewServerWithDeps(testConfig(), Deps{})
	assert.Error(t, err)

	_, err = NewServerWithDeps(testConfig(), Deps{DB: testutil.NewDB(t)})
	assert.Error(t, err)
}

func TestSubmissionToCollectionFlow(t *testing.T) {
	ts := newTestServer(t)
	maker, makerToken := ts.login(t, models.RoleUser)
	_, modToken := ts.login(t, models.RoleModerator)

	resp := ts.do(t, http.MethodPost, "/api/patch-submission/upload", makerToken, jsonBody{
		"fileId":         ts.putFile(t, maker.ID),
		"name":           "DTU Software",
		"maker":          "S-Huset",
		"universityCode": "dtu",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sub models.PatchSubmission
	decode(t, resp, &sub)
	assert.Equal(t, models.SubmissionUnpublished, sub.Status)
	assert.Equal(t, "DTU", sub.UniversityCode)

	resp = ts.do(t, http.MethodGet, "/api/patch-submission/unpublished", modToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []models.PatchSubmission
	decode(t, resp, &pending)
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].ImageURL)

	resp = ts.do(t, http.MethodPatch, "/api/patch-submission/update", modToken, jsonBody{
		"id":     sub.ID,
		"status": models.SubmissionPublished,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &sub)
	require.NotNil(t, sub.PatchNumber)
	assert.Equal(t, uint(1), *sub.PatchNumber)
	assert.Equal(t, []uint{1}, ts.index.Indexed)

	processed, err := ts.Linker().ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	resp = ts.do(t, http.MethodGet, "/api/user-patches", makerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var collection []models.UserPatch
	decode(t, resp, &collection)
	require.Len(t, collection, 1)
	assert.Equal(t, uint(1), collection[0].PatchNumber)
	require.NotNil(t, collection[0].Patch)
	assert.Equal(t, "DTU Software", collection[0].Patch.Name)

	resp = ts.do(t, http.MethodGet, "/api/patches/1", makerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var patch models.Patch
	decode(t, resp, &patch)
	assert.True(t, patch.IsOwned)

	resp = ts.do(t, http.MethodGet, "/api/patches/1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &patch)
	assert.False(t, patch.IsOwned)
}

func TestUserPatchUploadAndRematch(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.login(t, models.RolePatchMaker)
	user, token := ts.login(t, models.RoleUser)
	first := testutil.CreatePatch(t, ts.db, owner, "First")
	second := testutil.CreatePatch(t, ts.db, owner, "Second")
	ts.index.Matches = []patchindex.Match{{ID: second.PatchNumber, Score: 0.92}}

	resp := ts.do(t, http.MethodPost, "/api/user-patches/upload/"+ts.putFile(t, user.ID), token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result service.UploadResult
	decode(t, resp, &result)
	assert.Empty(t, result.OwnedMatches)
	require.Len(t, result.NewMatches, 1)
	assert.Equal(t, second.PatchNumber, result.NewMatches[0].Patch.PatchNumber)

	resp = ts.do(t, http.MethodGet, "/api/user-patches/unmatched", token, nil)
	var unmatched []models.UserPatchUpload
	decode(t, resp, &unmatched)
	require.Len(t, unmatched, 1)

	path := "/api/user-patches/" + result.Upload.ID.String() + "/matching-patch-number/"
	resp = ts.do(t, http.MethodPatch, path+"1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry models.UserPatch
	decode(t, resp, &entry)
	assert.Equal(t, first.PatchNumber, entry.PatchNumber)

	resp = ts.do(t, http.MethodPatch, "/api/user-patches/"+entry.ID.String()+"/favorite", token, jsonBody{"isFavorite": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &entry)
	assert.True(t, entry.IsFavorite)

	resp = ts.do(t, http.MethodPatch, "/api/user-patches/"+entry.ID.String()+"/favorite", token, jsonBody{})
	requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDValidation)

	resp = ts.do(t, http.MethodPatch, path+"999", token, nil)
	requireErrorID(t, resp, http.StatusNotFound, "patch-not-found-error-id")

	resp = ts.do(t, http.MethodPatch, path+"zero", token, nil)
	requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDValidation)

	resp = ts.do(t, http.MethodGet, "/api/user-patches/"+user.ID.String(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPatchRoutes_SearchAndPaging(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.login(t, models.RolePatchMaker)
	for _, name := range []string{"Red Fox", "Blue Fox", "Green Owl"} {
		testutil.CreatePatch(t, ts.db, owner, name)
	}

	resp := ts.do(t, http.MethodGet, "/api/patches?take=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page []models.Patch
	decode(t, resp, &page)
	assert.Len(t, page, 2)

	resp = ts.do(t, http.MethodGet, "/api/patches/search?name=fox", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found []models.Patch
	decode(t, resp, &found)
	assert.Len(t, found, 2)

	resp = ts.do(t, http.MethodGet, "/api/patches/42", "", nil)
	requireErrorID(t, resp, http.StatusNotFound, "patch-not-found-error-id")

	resp = ts.do(t, http.MethodGet, "/api/patches/abc", "", nil)
	requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDValidation)
}

func TestGetPatchSubmissionAccess(t *testing.T) {
	ts := newTestServer(t)
	owner, ownerToken := ts.login(t, models.RoleUser)
	_, strangerToken := ts.login(t, models.RoleUser)
	_, moderatorToken := ts.login(t, models.RoleModerator)

	patch := testutil.CreatePatch(t, ts.db, owner, "Owned")
	var sub models.PatchSubmission
	require.NoError(t, ts.db.First(&sub, "patch_number = ?", patch.PatchNumber).Error)
	path := "/api/patch-submission/" + sub.ID.String()

	for _, token := range []string{ownerToken, moderatorToken} {
		resp := ts.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got models.PatchSubmission
		decode(t, resp, &got)
		assert.Equal(t, sub.ID, got.ID)
	}

	resp := ts.do(t, http.MethodGet, path, strangerToken, nil)
	requireErrorID(t, resp, http.StatusForbidden, models.ErrIDForbidden)
}

func TestRoleGuards(t *testing.T) {
	ts := newTestServer(t)
	_, userToken := ts.login(t, models.RoleUser)
	_, adminToken := ts.login(t, models.RoleAdmin)

	resp := ts.do(t, http.MethodGet, "/api/patch-submission/"+uuid.NewString(), userToken, nil)
	requireErrorID(t, resp, http.StatusNotFound, "patch-submission-not-found-error-id")

	resp = ts.do(t, http.MethodGet, "/api/file-service/upload-url/patch", userToken, nil)
	requireErrorID(t, resp, http.StatusForbidden, models.ErrIDForbidden)

	resp = ts.do(t, http.MethodGet, "/api/patch-submission/unpublished", userToken, nil)
	requireErrorID(t, resp, http.StatusForbidden, models.ErrIDForbidden)

	resp = ts.do(t, http.MethodGet, "/api/admin/feature-flags", userToken, nil)
	requireErrorID(t, resp, http.StatusForbidden, models.ErrIDForbidden)

	resp = ts.do(t, http.MethodGet, "/api/admin/feature-flags", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var flags struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}
	decode(t, resp, &flags)
	assert.Equal(t, "on", flags.Raw["upload_similarity_search"])
	assert.True(t, flags.Evaluated["upload_similarity_search"])

	resp = ts.do(t, http.MethodGet, "/api/admin/link-jobs/failed", adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/admin/link-jobs/retry", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var retried map[string]int64
	decode(t, resp, &retried)
	assert.Zero(t, retried["requeued"])
}

func TestErrorBoundary(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/user/me", "", nil)
	requireErrorID(t, resp, http.StatusUnauthorized, models.ErrIDUnauthorized)

	resp = ts.do(t, http.MethodGet, "/api/user/me", "not-a-jwt", nil)
	requireErrorID(t, resp, http.StatusUnauthorized, models.ErrIDUnauthorized)

	resp = ts.do(t, http.MethodGet, "/api/nothing-here", "", nil)
	requireErrorID(t, resp, http.StatusNotFound, "route-not-found-error-id")

	ts.index.Matches = nil
	ts.index.SearchErr = assert.AnError
	user, token := ts.login(t, models.RoleUser)
	resp = ts.do(t, http.MethodPost, "/api/user-patches/upload/"+ts.putFile(t, user.ID), token, nil)
	body := requireErrorID(t, resp, http.StatusInternalServerError, models.ErrIDUnhandled)
	assert.Contains(t, body.InnerException, assert.AnError.Error())
}

func TestErrorBoundary_HidesInnerExceptionInProduction(t *testing.T) {
	ts := newTestServer(t)
	ts.config.Env = "production"
	ts.index.SearchErr = assert.AnError
	user, token := ts.login(t, models.RoleUser)

	resp := ts.do(t, http.MethodPost, "/api/user-patches/upload/"+ts.putFile(t, user.ID), token, nil)
	body := requireErrorID(t, resp, http.StatusInternalServerError, models.ErrIDUnhandled)
	assert.Empty(t, body.InnerException)
}

func TestUniversityRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/universities", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []config.University
	decode(t, resp, &all)
	require.Len(t, all, 1)
	assert.Equal(t, "DTU", all[0].Code)

	resp = ts.do(t, http.MethodGet, "/api/universities/dtu", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/universities/XYZ", "", nil)
	requireErrorID(t, resp, http.StatusNotFound, "university-not-found-error-id")
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, resp, &ready)
	assert.Equal(t, "healthy", ready.Status)
	assert.Equal(t, "healthy", ready.Checks["database"])
	assert.Equal(t, "disabled", ready.Checks["redis"])

	resp = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")
}

// jsonBody is a JSON object literal for request bodies.
type jsonBody = map[string]any
