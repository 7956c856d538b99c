package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a user account in the system
type User struct {
	gorm.Model

	// Authentication fields
	Email           string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash    string     `json:"-"` // empty for SSO-created accounts
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	// Google OAuth fields
	GoogleID       *string `gorm:"uniqueIndex" json:"google_id,omitempty"`
	GoogleImageURL *string `json:"google_image_url,omitempty"`

	// Profile information
	Name     string `json:"name"`
	Timezone string `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	// Relations
	OwnedTeams  []Team       `gorm:"foreignKey:UserID" json:"owned_teams,omitempty"`
	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// HasPassword reports whether the account carries a local password.
// SSO-created users have none; flows that re-confirm the password
// (team deletion, account deletion) skip the check for them.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// FirstName returns the leading word of the user's name, used to label
// the personal team created at registration.
func (u *User) FirstName() string {
	for i := 0; i < len(u.Name); i++ {
		if u.Name[i] == ' ' {
			return u.Name[:i]
		}
	}
	return u.Name
}
