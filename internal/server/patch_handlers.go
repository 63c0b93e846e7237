package server

import (
	"patchdb/internal/models"
	"patchdb/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPatches handles GET /api/patches?skip=&take=
func (s *Server) GetPatches(c *fiber.Ctx) error {
	page := parsePagination(c)
	patches, err := s.patchService.GetPatches(c.UserContext(), currentUserID(c), page.Skip, page.Take)
	if err != nil {
		return err
	}
	return c.JSON(patches)
}

// SearchPatches handles GET /api/patches/search?name=&description=&maker=&section=&universityCode=
func (s *Server) SearchPatches(c *fiber.Ctx) error {
	var filters service.PatchSearchInput
	if err := c.QueryParser(&filters); err != nil {
		return models.NewValidationError("Invalid search filters")
	}
	page := parsePagination(c)

	patches, err := s.patchService.SearchPatches(c.UserContext(), filters, currentUserID(c), page.Skip, page.Take)
	if err != nil {
		return err
	}
	return c.JSON(patches)
}

// GetPatch handles GET /api/patches/:number
func (s *Server) GetPatch(c *fiber.Ctx) error {
	number, err := parsePatchNumber(c, "number")
	if err != nil {
		return err
	}

	patch, err := s.patchService.GetPatch(c.UserContext(), number, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(patch)
}
