package server

import (
	"patchdb/internal/models"

	"github.com/gofiber/fiber/v2"
)

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}

// UploadUserPatch handles POST /api/user-patches/upload/:fileId
// It records a collection photo and returns similarity matches split into
// patches the caller owns and patches new to them.
func (s *Server) UploadUserPatch(c *fiber.Ctx) error {
	result, err := s.userPatchService.Upload(c.UserContext(), currentUserID(c), c.Params("fileId"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// UpdatePatchUploadMatch handles PATCH /api/user-patches/:uploadId/matching-patch-number/:number
func (s *Server) UpdatePatchUploadMatch(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c, "uploadId")
	if err != nil {
		return err
	}
	number, err := parsePatchNumber(c, "number")
	if err != nil {
		return err
	}

	entry, err := s.userPatchService.UpdatePatchUploadMatch(c.UserContext(), currentUserID(c), uploadID, number)
	if err != nil {
		return err
	}
	return c.JSON(entry)
}

// SetUserPatchFavorite handles PATCH /api/user-patches/:userPatchId/favorite
func (s *Server) SetUserPatchFavorite(c *fiber.Ctx) error {
	userPatchID, err := parseUUID(c, "userPatchId")
	if err != nil {
		return err
	}
	var req favoriteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.IsFavorite == nil {
		return models.NewValidationError("isFavorite is required")
	}

	entry, err := s.userPatchService.SetFavorite(c.UserContext(), currentUserID(c), userPatchID, *req.IsFavorite)
	if err != nil {
		return err
	}
	return c.JSON(entry)
}

// GetMyUserPatches handles GET /api/user-patches
func (s *Server) GetMyUserPatches(c *fiber.Ctx) error {
	entries, err := s.userPatchService.GetUserPatches(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// GetUnmatchedUploads handles GET /api/user-patches/unmatched
func (s *Server) GetUnmatchedUploads(c *fiber.Ctx) error {
	uploads, err := s.userPatchService.GetUnmatchedUploads(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(uploads)
}

// GetUserPatches handles GET /api/user-patches/:userId
func (s *Server) GetUserPatches(c *fiber.Ctx) error {
	userID, err := parseUUID(c, "userId")
	if err != nil {
		return err
	}

	entries, err := s.userPatchService.GetUserPatches(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}
