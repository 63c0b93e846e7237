package server

import (
	"patchdb/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadPatchSubmission handles POST /api/patch-submission/upload
func (s *Server) UploadPatchSubmission(c *fiber.Ctx) error {
	var req service.UploadPatchInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	sub, err := s.submissionService.UploadPatch(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// UpdatePatchSubmission handles PATCH /api/patch-submission/update
func (s *Server) UpdatePatchSubmission(c *fiber.Ctx) error {
	var req service.UpdatePatchSubmissionInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	sub, err := s.submissionService.Update(c.UserContext(), currentUserID(c), currentRole(c), req)
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

// GetUnpublishedSubmissions handles GET /api/patch-submission/unpublished (moderators)
func (s *Server) GetUnpublishedSubmissions(c *fiber.Ctx) error {
	page := parsePagination(c)
	subs, err := s.submissionService.GetUnpublishedSubmissions(c.UserContext(), page.Skip, page.Take)
	if err != nil {
		return err
	}
	return c.JSON(subs)
}

// GetMySubmissions handles GET /api/patch-submission/mine
func (s *Server) GetMySubmissions(c *fiber.Ctx) error {
	page := parsePagination(c)
	subs, err := s.submissionService.GetMySubmissions(c.UserContext(), currentUserID(c), page.Skip, page.Take)
	if err != nil {
		return err
	}
	return c.JSON(subs)
}

// GetPatchSubmission handles GET /api/patch-submission/:id (uploader or moderators)
func (s *Server) GetPatchSubmission(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	sub, err := s.submissionService.GetPatchSubmissionFor(c.UserContext(), id, currentUserID(c), currentRole(c))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}
