package testutil

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"patchdb/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// CreateUser inserts an active user with a random name and the given role.
func CreateUser(t testing.TB, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{
		Username: gofakeit.LetterN(12),
		Role:     role,
		State:    models.UserStateActive,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreatePatch inserts a published submission by owner and its canonical patch.
func CreatePatch(t testing.TB, db *gorm.DB, owner *models.User, name string) *models.Patch {
	t.Helper()
	sub := &models.PatchSubmission{
		FileKey:             "patches/" + gofakeit.UUID(),
		Name:                name,
		Maker:               gofakeit.Company(),
		Status:              models.SubmissionPublished,
		UploadedByUserID:    owner.ID,
		LastUpdatedByUserID: owner.ID,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create submission: %v", err)
	}
	p := &models.Patch{}
	p.CopyFromSubmission(sub)
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create patch: %v", err)
	}
	sub.PatchNumber = &p.PatchNumber
	if err := db.Save(sub).Error; err != nil {
		t.Fatalf("link submission: %v", err)
	}
	return p
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
