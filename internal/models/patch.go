package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionStatus is the moderation state of a PatchSubmission.
type SubmissionStatus string

const (
	SubmissionUnpublished SubmissionStatus = "unpublished"
	SubmissionPublished   SubmissionStatus = "published"
	SubmissionRejected    SubmissionStatus = "rejected"
	SubmissionDuplicate   SubmissionStatus = "duplicate"
	SubmissionDeleted     SubmissionStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionUnpublished, SubmissionPublished, SubmissionRejected, SubmissionDuplicate, SubmissionDeleted:
		return true
	}
	return false
}

// ParseSubmissionStatus accepts a status name in any case.
func ParseSubmissionStatus(value string) (SubmissionStatus, bool) {
	s := SubmissionStatus(strings.ToLower(strings.TrimSpace(value)))
	return s, s.Valid()
}

// PatchSubmission is a user-proposed patch awaiting moderation.
type PatchSubmission struct {
	ID                  uuid.UUID        `gorm:"type:varchar(36);primaryKey" json:"id"`
	PatchNumber         *uint            `gorm:"index" json:"patchNumber,omitempty"`
	UserPatchUploadID   *uuid.UUID       `gorm:"type:varchar(36)" json:"userPatchUploadId,omitempty"`
	FileKey             string           `gorm:"not null" json:"fileKey"`
	Name                string           `gorm:"size:256" json:"name"`
	Description         string           `gorm:"type:text" json:"description"`
	Maker               string           `gorm:"size:256" json:"maker"`
	UniversityCode      string           `gorm:"size:32;index" json:"universityCode"`
	Section             string           `gorm:"size:256" json:"section"`
	ReleaseDate         *datatypes.Date  `json:"releaseDate,omitempty"`
	Status              SubmissionStatus `gorm:"type:varchar(16);not null;default:'unpublished';index" json:"status"`
	UploadedByUserID    uuid.UUID        `gorm:"type:varchar(36);not null;index" json:"uploadedByUserId"`
	LastUpdatedByUserID uuid.UUID        `gorm:"type:varchar(36);not null" json:"lastUpdatedByUserId"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`

	ImageURL string `gorm:"-" json:"imageUrl,omitempty"`
}

// BeforeCreate assigns an id and the initial status.
func (s *PatchSubmission) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SubmissionUnpublished
	}
	return nil
}

// Patch is the canonical, published catalogue entry.
type Patch struct {
	PatchNumber       uint            `gorm:"primaryKey;autoIncrement" json:"patchNumber"`
	FileKey           string          `gorm:"not null" json:"fileKey"`
	Name              string          `gorm:"size:256;index" json:"name"`
	Description       string          `gorm:"type:text" json:"description"`
	Maker             string          `gorm:"size:256" json:"maker"`
	UniversityCode    string          `gorm:"size:32;index" json:"universityCode"`
	Section           string          `gorm:"size:256" json:"section"`
	ReleaseDate       *datatypes.Date `json:"releaseDate,omitempty"`
	PatchSubmissionID uuid.UUID       `gorm:"type:varchar(36);uniqueIndex;not null" json:"patchSubmissionId"`
	SubmittedByUserID uuid.UUID       `gorm:"type:varchar(36);index;not null" json:"submittedByUserId"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`

	// Computed per request
	IsOwned  bool   `gorm:"-" json:"isOwned"`
	ImageURL string `gorm:"-" json:"imageUrl,omitempty"`
}

// CopyFromSubmission mirrors the descriptive fields of s onto p.
func (p *Patch) CopyFromSubmission(s *PatchSubmission) {
	p.FileKey = s.FileKey
	p.Name = s.Name
	p.Description = s.Description
	p.Maker = s.Maker
	p.UniversityCode = s.UniversityCode
	p.Section = s.Section
	p.ReleaseDate = s.ReleaseDate
	p.PatchSubmissionID = s.ID
	p.SubmittedByUserID = s.UploadedByUserID
}
