package server

import (
	"patchdb/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// GetMe handles GET /api/user/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, err := s.userService.GetMe(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// UpdateProfile handles PATCH /api/user/profile
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req service.UpdateProfileInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// UpdateUniversityInfo handles PATCH /api/user/university-info
func (s *Server) UpdateUniversityInfo(c *fiber.Ctx) error {
	var req service.UpdateUniversityInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := s.userService.UpdateUniversityInfo(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// GetUser handles GET /api/user/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	user, err := s.userService.GetUser(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// Follow handles POST /api/user/:id/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.followingService.Follow(c.UserContext(), id, currentUserID(c)); err != nil {
		return err
	}
	return s.respondWithUser(c, id)
}

// Unfollow handles DELETE /api/user/:id/follow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.followingService.Unfollow(c.UserContext(), id, currentUserID(c)); err != nil {
		return err
	}
	return s.respondWithUser(c, id)
}

// respondWithUser writes the target user as seen by the caller after a graph change.
func (s *Server) respondWithUser(c *fiber.Ctx, id uuid.UUID) error {
	user, err := s.userService.GetUser(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// GetFollowers handles GET /api/user/:id/followers?skip=&take=
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	page := parsePagination(c)

	users, err := s.followingService.GetFollowers(c.UserContext(), id, currentUserID(c), page.Skip, page.Take)
	if err != nil {
		return err
	}
	return c.JSON(users)
}

// GetFollowing handles GET /api/user/:id/following?skip=&take=
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	page := parsePagination(c)

	users, err := s.followingService.GetFollowing(c.UserContext(), id, currentUserID(c), page.Skip, page.Take)
	if err != nil {
		return err
	}
	return c.JSON(users)
}
