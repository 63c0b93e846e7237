package server

import (
	"strconv"
	"strings"
	"unicode"

	"patchdb/internal/middleware"
	"patchdb/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Pagination holds parsed skip/take query parameters. The services clamp them.
type Pagination struct {
	Skip int
	Take int
}

// parsePagination extracts skip and take query parameters. A missing take is 0,
// which the services turn into their default page size.
func parsePagination(c *fiber.Ctx) Pagination {
	skip := c.QueryInt("skip", 0)
	if skip < 0 {
		skip = 0
	}
	return Pagination{
		Skip: skip,
		Take: c.QueryInt("take", 0),
	}
}

// parseUUID extracts a route parameter by name as a UUID.
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "userId" -> "Invalid user ID", "userPatchId" -> "Invalid user patch ID").
func parseUUID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, models.NewValidationError("Invalid " + humanizeParam(param))
	}
	return id, nil
}

// parsePatchNumber extracts a positive patch number from a route parameter.
func parsePatchNumber(c *fiber.Ctx, param string) (uint, error) {
	n, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || n == 0 {
		return 0, models.NewValidationError("Invalid patch number")
	}
	return uint(n), nil
}

// parseBody decodes the JSON request body into dest.
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID", "uploadId" -> "upload ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	// Split on camelCase boundary before the trailing "Id" suffix.
	if strings.HasSuffix(param, "Id") {
		prefix := param[:len(param)-2]
		words := splitCamel(prefix)
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// currentUserID returns the authenticated caller, or uuid.Nil for anonymous requests.
func currentUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals("userID").(uuid.UUID)
	return id
}

// currentRole returns the caller's role; anonymous callers have the lowest role.
func currentRole(c *fiber.Ctx) models.UserRole {
	role, _ := c.Locals("role").(models.UserRole)
	return role
}

// AuthRequired returns middleware that rejects requests without a valid bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return middleware.Authenticate(s.tokens, true)
}

// OptionalAuth identifies the caller when a token is present so that responses can
// be annotated for them, and lets anonymous requests through.
func (s *Server) OptionalAuth() fiber.Handler {
	return middleware.Authenticate(s.tokens, false)
}

// RoleRequired returns middleware that rejects callers below min with 403.
// Must be placed after AuthRequired so that the role is available in locals.
func (s *Server) RoleRequired(min models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := middleware.CurrentIdentity(c); !ok {
			return models.NewUnauthorizedError("Authorization required")
		}
		if !currentRole(c).AtLeast(min) {
			return models.NewForbiddenError(min.String() + " access required")
		}
		return c.Next()
	}
}

// httpErrorID names routing-level failures that do not originate from an AppError.
func httpErrorID(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return models.ErrIDValidation
	case fiber.StatusUnauthorized:
		return models.ErrIDUnauthorized
	case fiber.StatusForbidden:
		return models.ErrIDForbidden
	case fiber.StatusNotFound:
		return "route-not-found-error-id"
	case fiber.StatusMethodNotAllowed:
		return "method-not-allowed-error-id"
	case fiber.StatusRequestEntityTooLarge:
		return "request-too-large-error-id"
	case fiber.StatusTooManyRequests:
		return models.ErrIDTooManyRequests
	default:
		return models.ErrIDUnhandled
	}
}
