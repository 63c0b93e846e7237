package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies an AppError and determines its HTTP status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

// Status returns the HTTP status code for the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindBadRequest:
		return fiber.StatusBadRequest
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindTooManyRequests:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// Stable error identifiers shared with clients.
const (
	ErrIDUnhandled             = "unhandled-internal-server-error-id"
	ErrIDValidation            = "validation-error-id"
	ErrIDUnauthorized          = "unauthorized-error-id"
	ErrIDForbidden             = "forbidden-error-id"
	ErrIDTooManyRequests       = "too-many-requests-error-id"
	ErrIDBioTooLong            = "bio-too-long-error-id"
	ErrIDInvalidUniversityCode = "invalid-university-code-error-id"
	ErrIDInvalidProgram        = "invalid-university-program-error-id"
	ErrIDWrongPassword         = "wrong-password-error-id"
	ErrIDUsernameTaken         = "username-already-exists-error-id"
	ErrIDPatchNameRequired     = "patch-name-required-error-id"
	ErrIDSelfFollow            = "cannot-follow-self-error-id"
	ErrIDFileNotFound          = "file-not-found-error-id"
	ErrIDInvalidImage          = "invalid-image-error-id"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Message        string         `json:"message"`
	ErrorID        string         `json:"errorId"`
	ErrorResponse  map[string]any `json:"errorResponse,omitempty"`
	InnerException string         `json:"innerException,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Payload map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error.
func (e *AppError) Status() int {
	return e.Kind.Status()
}

// WithPayload attaches structured details returned to the client.
func (e *AppError) WithPayload(payload map[string]any) *AppError {
	e.Payload = payload
	return e
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    resourceCode(resource) + "-not-found-error-id",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Kind:    KindBadRequest,
		Code:    ErrIDValidation,
		Message: message,
	}
}

func NewBadRequestError(code, message string) *AppError {
	return &AppError{
		Kind:    KindBadRequest,
		Code:    code,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    ErrIDUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Kind:    KindForbidden,
		Code:    ErrIDForbidden,
		Message: message,
	}
}

func NewConflictError(code, message string) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    code,
		Message: message,
	}
}

func NewTooManyRequestsError(message string) *AppError {
	return &AppError{
		Kind:    KindTooManyRequests,
		Code:    ErrIDTooManyRequests,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    ErrIDUnhandled,
		Message: "Internal server error",
		Err:     err,
	}
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// BuildErrorResponse converts any error into its HTTP status and response body.
// Errors that are not AppErrors are reported as unhandled internal errors.
func BuildErrorResponse(err error, includeInner bool) (int, ErrorResponse) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewInternalError(err)
	}

	response := ErrorResponse{
		Message:       appErr.Message,
		ErrorID:       appErr.Code,
		ErrorResponse: appErr.Payload,
	}
	if includeInner && appErr.Err != nil {
		response.InnerException = appErr.Err.Error()
	}
	return appErr.Status(), response
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, err error, includeInner bool) error {
	status, response := BuildErrorResponse(err, includeInner)
	return c.Status(status).JSON(response)
}

func resourceCode(resource string) string {
	var b strings.Builder
	for i, r := range resource {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == ' ' || r == '_':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
