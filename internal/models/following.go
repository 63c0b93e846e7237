package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Following is a directed follow edge. The composite key keeps each pair unique.
type Following struct {
	FollowerID uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"followerId"`
	FolloweeID uuid.UUID `gorm:"type:varchar(36);primaryKey;index" json:"followeeId"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`

	Follower *User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followee *User `gorm:"foreignKey:FolloweeID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM
func (Following) TableName() string {
	return "followings"
}

// BeforeCreate rejects self-follow edges.
func (f *Following) BeforeCreate(_ *gorm.DB) error {
	if f.FollowerID == f.FolloweeID {
		return NewBadRequestError(ErrIDSelfFollow, "users cannot follow themselves")
	}
	return nil
}
