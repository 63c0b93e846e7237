package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"strings"

	"patchdb/internal/models"
	"patchdb/internal/storage"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// UploadFileInput is a proxied upload received by the server.
type UploadFileInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// UploadedFile identifies an object written through the proxy.
type UploadedFile struct {
	FileID      string `json:"fileId"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// FileService hands out pre-signed URLs and accepts proxied uploads.
type FileService struct {
	store              storage.Store
	maxUploadSizeBytes int64
}

// NewFileService returns a new FileService.
func NewFileService(store storage.Store, maxUploadSizeBytes int64) *FileService {
	return &FileService{store: store, maxUploadSizeBytes: maxUploadSizeBytes}
}

// UploadURL returns a URL for uploading a new file under the caller's prefix.
func (s *FileService) UploadURL(ctx context.Context, userID uuid.UUID, contentType string) (*storage.PresignedURL, error) {
	contentType, err := checkUploadContentType(contentType)
	if err != nil {
		return nil, err
	}
	fileID := uuid.NewString()
	u, err := s.store.PresignUpload(ctx, storage.UserFileKey(userID, fileID), contentType)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	u.FileID = fileID
	return u, nil
}

// PatchUploadURL returns a URL for uploading a canonical patch image. PatchMaker and up only.
func (s *FileService) PatchUploadURL(ctx context.Context, role models.UserRole, contentType string) (*storage.PresignedURL, error) {
	if !role.AtLeast(models.RolePatchMaker) {
		return nil, models.NewForbiddenError("Only patch makers can upload patch images")
	}
	contentType, err := checkUploadContentType(contentType)
	if err != nil {
		return nil, err
	}
	fileID := uuid.NewString()
	u, err := s.store.PresignUpload(ctx, storage.PatchFileKey(fileID), contentType)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	u.FileID = fileID
	return u, nil
}

// DownloadURL returns a URL for one of the caller's files.
func (s *FileService) DownloadURL(ctx context.Context, userID uuid.UUID, fileID string) (*storage.PresignedURL, error) {
	key, err := resolveUserFile(ctx, s.store, userID, fileID)
	if err != nil {
		return nil, err
	}
	u, err := s.store.PresignDownload(ctx, key)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	u.FileID = fileID
	return u, nil
}

// Upload validates an image sent through the server and stores it under the caller's prefix.
func (s *FileService) Upload(ctx context.Context, userID uuid.UUID, in UploadFileInput) (*UploadedFile, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return nil, models.NewBadRequestError(models.ErrIDInvalidImage, "Invalid image type")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewBadRequestError(models.ErrIDInvalidImage, "Invalid image file")
	}
	contentType := decodedFormatToMime(format)
	if contentType == "" {
		return nil, models.NewBadRequestError(models.ErrIDInvalidImage, "Unsupported image format")
	}
	provided := normalizeContentType(in.ContentType)
	if provided == "image/jpg" {
		provided = "image/jpeg"
	}
	if strings.HasPrefix(provided, "image/") && provided != contentType {
		return nil, models.NewBadRequestError(models.ErrIDInvalidImage, "Image content type mismatch")
	}

	fileID := uuid.NewString()
	key := storage.UserFileKey(userID, fileID)
	if err := s.store.Upload(ctx, key, bytes.NewReader(in.Content), contentType); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &UploadedFile{
		FileID:      fileID,
		Key:         key,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

func checkUploadContentType(contentType string) (string, error) {
	contentType = normalizeContentType(contentType)
	if contentType == "" {
		return "", nil
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	if !isAllowedImageMIME(contentType) {
		return "", models.NewBadRequestError(models.ErrIDInvalidImage, "Unsupported content type "+contentType)
	}
	return contentType, nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
