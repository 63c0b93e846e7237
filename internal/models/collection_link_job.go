package models

import (
	"time"

	"github.com/google/uuid"
)

// LinkJobStatus tracks the processing state of a CollectionLinkJob.
type LinkJobStatus string

const (
	LinkJobQueued     LinkJobStatus = "queued"
	LinkJobProcessing LinkJobStatus = "processing"
	LinkJobDone       LinkJobStatus = "done"
	LinkJobFailed     LinkJobStatus = "failed"
)

// CollectionLinkJob is an outbox entry written in the same transaction as a
// first-time publish. A worker attaches the submission's upload to the
// submitter's collection.
type CollectionLinkJob struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	PatchSubmissionID   uuid.UUID     `gorm:"type:varchar(36);not null;index" json:"patchSubmissionId"`
	UserID              uuid.UUID     `gorm:"type:varchar(36);not null" json:"userId"`
	PatchNumber         uint          `gorm:"not null" json:"patchNumber"`
	FileKey             string        `gorm:"not null" json:"fileKey"`
	UserPatchUploadID   *uuid.UUID    `gorm:"type:varchar(36)" json:"userPatchUploadId,omitempty"`
	Status              LinkJobStatus `gorm:"type:varchar(16);not null;default:'queued';index:idx_link_jobs_status_next" json:"status"`
	Attempts            int           `gorm:"not null;default:0" json:"attempts"`
	LastError           string        `gorm:"type:text" json:"lastError,omitempty"`
	NextAttemptAt       time.Time     `gorm:"index:idx_link_jobs_status_next" json:"nextAttemptAt"`
	ProcessingStartedAt *time.Time    `json:"processingStartedAt,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}
