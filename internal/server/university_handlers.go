package server

import "github.com/gofiber/fiber/v2"

// GetUniversities handles GET /api/universities
func (s *Server) GetUniversities(c *fiber.Ctx) error {
	return c.JSON(s.universities.All())
}

// GetUniversity handles GET /api/universities/:code
func (s *Server) GetUniversity(c *fiber.Ctx) error {
	university, err := s.universities.Get(c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(university)
}
