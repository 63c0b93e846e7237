package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserPatch records that a user owns a given catalogue patch.
type UserPatch struct {
	ID          uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      uuid.UUID         `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_patch_owner" json:"userId"`
	PatchNumber uint              `gorm:"not null;uniqueIndex:idx_user_patch_owner;index" json:"patchNumber"`
	IsFavorite  bool              `gorm:"not null;default:false" json:"isFavorite"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Patch       *Patch            `gorm:"foreignKey:PatchNumber;references:PatchNumber" json:"patch,omitempty"`
	Uploads     []UserPatchUpload `gorm:"foreignKey:UserPatchID" json:"uploads"`
}

// BeforeCreate assigns an id when none was provided.
func (p *UserPatch) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// UserPatchUpload is a photo a user took of a patch. A nil UserPatchID means unmatched.
type UserPatchUpload struct {
	ID          uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"userId"`
	UserPatchID *uuid.UUID `gorm:"type:varchar(36);index" json:"userPatchId,omitempty"`
	FileKey     string     `gorm:"not null" json:"fileKey"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	ImageURL string `gorm:"-" json:"imageUrl,omitempty"`
}

// BeforeCreate assigns an id when none was provided.
func (u *UserPatchUpload) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Matched reports whether the upload is attached to a collection entry.
func (u *UserPatchUpload) Matched() bool {
	return u.UserPatchID != nil
}
