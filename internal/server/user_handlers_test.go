package server

import (
	"net/http"
	"strings"
	"testing"

	"patchdb/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHandlers_UpdateProfileBioLimit(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.login(t, models.RoleUser)

	resp := ts.do(t, http.MethodPatch, "/api/user/profile", token, jsonBody{"bio": strings.Repeat("b", 160)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user models.User
	decode(t, resp, &user)
	require.NotNil(t, user.Bio)
	assert.Len(t, *user.Bio, 160)

	resp = ts.do(t, http.MethodPatch, "/api/user/profile", token, jsonBody{"bio": strings.Repeat("b", 161)})
	body := requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDBioTooLong)
	assert.EqualValues(t, 160, body.ErrorResponse["maxLength"])
}

func TestUserHandlers_UniversityInfo(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.login(t, models.RoleUser)

	resp := ts.do(t, http.MethodPatch, "/api/user/university-info", token, jsonBody{
		"universityCode":    "dtu",
		"universityProgram": "Software Technology",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user models.User
	decode(t, resp, &user)
	require.NotNil(t, user.UniversityCode)
	assert.Equal(t, "DTU", *user.UniversityCode)

	resp = ts.do(t, http.MethodPatch, "/api/user/university-info", token, jsonBody{"universityCode": "NOPE"})
	requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDInvalidUniversityCode)
}

func TestUserHandlers_FollowGraph(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.login(t, models.RoleUser)
	bob, bobToken := ts.login(t, models.RoleUser)
	followPath := "/api/user/" + bob.ID.String() + "/follow"

	var target models.User
	for i := 0; i < 2; i++ {
		resp := ts.do(t, http.MethodPost, followPath, aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decode(t, resp, &target)
		assert.Equal(t, bob.ID, target.ID)
		assert.True(t, target.IsFollowing)
		assert.Equal(t, 1, target.FollowersCount, "repeated follow must not change the counter")
	}

	resp := ts.do(t, http.MethodGet, "/api/user/"+bob.ID.String(), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var viewed models.User
	decode(t, resp, &viewed)
	assert.Equal(t, 1, viewed.FollowersCount)
	assert.True(t, viewed.IsFollowing)

	resp = ts.do(t, http.MethodGet, "/api/user/"+bob.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &viewed)
	assert.False(t, viewed.IsFollowing)

	resp = ts.do(t, http.MethodGet, "/api/user/"+bob.ID.String()+"/followers", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var followers []models.User
	decode(t, resp, &followers)
	require.Len(t, followers, 1)
	assert.Equal(t, alice.ID, followers[0].ID)
	assert.False(t, followers[0].IsFollowing)

	resp = ts.do(t, http.MethodGet, "/api/user/"+alice.ID.String()+"/following", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var following []models.User
	decode(t, resp, &following)
	require.Len(t, following, 1)
	assert.True(t, following[0].IsFollowing)

	for i := 0; i < 2; i++ {
		resp = ts.do(t, http.MethodDelete, followPath, aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		target = models.User{}
		decode(t, resp, &target)
		assert.Equal(t, bob.ID, target.ID)
		assert.False(t, target.IsFollowing)
		assert.Zero(t, target.FollowersCount)
	}

	resp = ts.do(t, http.MethodPost, "/api/user/"+alice.ID.String()+"/follow", aliceToken, nil)
	requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDSelfFollow)

	resp = ts.do(t, http.MethodPost, "/api/user/"+uuid.NewString()+"/follow", aliceToken, nil)
	requireErrorID(t, resp, http.StatusNotFound, "user-not-found-error-id")

	resp = ts.do(t, http.MethodPost, followPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUserHandlers_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/user/not-a-uuid", "", nil)
	body := requireErrorID(t, resp, http.StatusBadRequest, models.ErrIDValidation)
	assert.Equal(t, "Invalid ID", body.Message)

	resp = ts.do(t, http.MethodGet, "/api/user/"+uuid.NewString(), "", nil)
	requireErrorID(t, resp, http.StatusNotFound, "user-not-found-error-id")
}
