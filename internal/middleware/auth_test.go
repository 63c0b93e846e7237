package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"patchdb/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierFunc func(ctx context.Context, token string) (*Identity, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	verifier := verifierFunc(func(_ context.Context, token string) (*Identity, error) {
		switch token {
		case "good":
			return &Identity{UserID: userID, Role: models.RoleModerator}, nil
		case "store-down":
			return nil, models.NewInternalError(errors.New("redis unavailable"))
		default:
			return nil, errors.New("signature is invalid")
		}
	})

	newApp := func(required bool) *fiber.App {
		app := newTestApp()
		app.Get("/test", Authenticate(verifier, required), func(c *fiber.Ctx) error {
			uid, _ := c.Locals("userID").(uuid.UUID)
			fromCtx, _ := c.UserContext().Value(UserIDKey).(uuid.UUID)
			return c.JSON(fiber.Map{"userID": uid.String(), "ctxUserID": fromCtx.String()})
		})
		return app
	}

	tests := []struct {
		name           string
		required       bool
		authHeader     string
		expectedStatus int
		expectedUserID string
	}{
		{"Happy Path", true, "Bearer good", http.StatusOK, userID.String()},
		{"Lowercase scheme", true, "bearer good", http.StatusOK, userID.String()},
		{"Missing Header", true, "", http.StatusUnauthorized, ""},
		{"Optional Missing Header", false, "", http.StatusOK, uuid.Nil.String()},
		{"Invalid Format", true, "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"Invalid Token", true, "Bearer forged", http.StatusUnauthorized, ""},
		{"Optional Invalid Token", false, "Bearer forged", http.StatusUnauthorized, ""},
		{"Verifier Failure", true, "Bearer store-down", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := newApp(tt.required).Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.expectedStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.expectedUserID, body["userID"])
				assert.Equal(t, tt.expectedUserID, body["ctxUserID"])
			} else {
				var body models.ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.NotEmpty(t, body.ErrorID)
			}
		})
	}
}
