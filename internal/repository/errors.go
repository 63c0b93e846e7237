package repository

import (
	"errors"

	"patchdb/internal/models"

	"gorm.io/gorm"
)

// wrap maps a gorm error to an AppError, translating missing rows to NotFound.
func wrap(err error, resource string, id any) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}
