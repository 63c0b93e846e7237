// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"strings"
	"time"

	"patchdb/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID    uuid.UUID
	Role      models.UserRole
	Method    string
	TokenID   string
	ExpiresAt time.Time
}

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Authenticate validates the bearer token and stores the caller in Fiber locals
// ("userID", "role", "identity") and in the user context.
// With required=false a missing header passes through anonymously; an invalid
// token is still rejected.
func Authenticate(verifier TokenVerifier, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			if !required {
				return c.Next()
			}
			return models.NewUnauthorizedError("Authorization header required")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return models.NewUnauthorizedError("Invalid authorization header format")
		}

		identity, err := verifier.Verify(c.UserContext(), parts[1])
		if err != nil {
			if models.IsKind(err, models.KindInternal) {
				return err
			}
			return models.NewUnauthorizedError("Invalid or expired token")
		}

		c.Locals("userID", identity.UserID)
		c.Locals("role", identity.Role)
		c.Locals("identity", identity)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, identity.UserID))

		return c.Next()
	}
}

// CurrentIdentity returns the authenticated caller, if any.
func CurrentIdentity(c *fiber.Ctx) (*Identity, bool) {
	identity, ok := c.Locals("identity").(*Identity)
	return identity, ok && identity != nil
}
