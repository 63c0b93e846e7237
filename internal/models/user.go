// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole is an ordered trust level. Higher values include the rights of lower ones.
type UserRole int

const (
	RoleUser UserRole = iota
	RolePatchMaker
	RoleModerator
	RoleAdmin
)

var roleNames = map[UserRole]string{
	RoleUser:       "User",
	RolePatchMaker: "PatchMaker",
	RoleModerator:  "Moderator",
	RoleAdmin:      "Admin",
}

func (r UserRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("UserRole(%d)", int(r))
}

// AtLeast reports whether r grants at least the rights of min.
func (r UserRole) AtLeast(min UserRole) bool {
	return r >= min
}

// MarshalText encodes the role by name.
func (r UserRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name, case-insensitively.
func (r *UserRole) UnmarshalText(text []byte) error {
	role, err := ParseUserRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseUserRole returns the role matching name.
func ParseUserRole(name string) (UserRole, error) {
	for role, roleName := range roleNames {
		if strings.EqualFold(roleName, strings.TrimSpace(name)) {
			return role, nil
		}
	}
	return RoleUser, fmt.Errorf("unknown role %q", name)
}

// UserState is the lifecycle state of an account.
type UserState string

const (
	UserStateActive  UserState = "active"
	UserStateLocked  UserState = "locked"
	UserStateBanned  UserState = "banned"
	UserStateDeleted UserState = "deleted"
)

// Valid reports whether s is a known state.
func (s UserState) Valid() bool {
	switch s {
	case UserStateActive, UserStateLocked, UserStateBanned, UserStateDeleted:
		return true
	}
	return false
}

// MaxBioLength is the maximum number of characters allowed in a user bio.
const MaxBioLength = 160

// User represents a PatchDB account.
type User struct {
	ID                uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	State             UserState `gorm:"type:varchar(16);not null;default:'active';index" json:"state"`
	Role              UserRole  `gorm:"not null;default:0" json:"role"`
	Username          string    `gorm:"size:30;uniqueIndex;not null" json:"username"`
	Bio               *string   `gorm:"size:160" json:"bio,omitempty"`
	ProfilePictureKey *string   `gorm:"size:128" json:"profilePictureKey,omitempty"`
	PasswordHash      *string   `json:"-"`
	Email             *string   `gorm:"size:320" json:"email,omitempty"`
	PhoneNumber       *string   `gorm:"size:32" json:"phoneNumber,omitempty"`
	UniversityCode    *string   `gorm:"size:32;index" json:"universityCode,omitempty"`
	UniversityProgram *string   `gorm:"size:128" json:"universityProgram,omitempty"`
	FollowingCount    int       `gorm:"not null;default:0" json:"followingCount"`
	FollowersCount    int       `gorm:"not null;default:0" json:"followersCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// Computed per request
	IsFollowing       bool   `gorm:"-" json:"isFollowing"`
	ProfilePictureURL string `gorm:"-" json:"profilePictureUrl,omitempty"`
}

// BeforeCreate assigns an id when none was provided.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.State == "" {
		u.State = UserStateActive
	}
	return nil
}

// Public strips fields only the account owner may see.
func (u User) Public() User {
	u.Email = nil
	u.PhoneNumber = nil
	return u
}
