package server

import (
	"io"

	"patchdb/internal/models"
	"patchdb/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetUploadURL handles GET /api/file-service/upload-url?contentType=
// The returned URL uploads under the caller's own prefix; its fileId is what
// the submission and collection endpoints accept.
func (s *Server) GetUploadURL(c *fiber.Ctx) error {
	url, err := s.fileService.UploadURL(c.UserContext(), currentUserID(c), c.Query("contentType"))
	if err != nil {
		return err
	}
	return c.JSON(url)
}

// GetPatchUploadURL handles GET /api/file-service/upload-url/patch?contentType= (patch makers)
func (s *Server) GetPatchUploadURL(c *fiber.Ctx) error {
	url, err := s.fileService.PatchUploadURL(c.UserContext(), currentRole(c), c.Query("contentType"))
	if err != nil {
		return err
	}
	return c.JSON(url)
}

// GetDownloadURL handles GET /api/file-service/download-url/:fileId
func (s *Server) GetDownloadURL(c *fiber.Ctx) error {
	url, err := s.fileService.DownloadURL(c.UserContext(), currentUserID(c), c.Params("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(url)
}

// UploadFile handles POST /api/file-service/upload (multipart field "image")
func (s *Server) UploadFile(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return models.NewValidationError("No file uploaded")
	}

	src, err := file.Open()
	if err != nil {
		return models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.NewValidationError("Unable to read uploaded file")
	}

	uploaded, err := s.fileService.Upload(c.UserContext(), currentUserID(c), service.UploadFileInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(uploaded)
}
