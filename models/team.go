package models

import (
	"gorm.io/gorm"
)

// Team represents a tenant workspace owned by exactly one user
type Team struct {
	gorm.Model
	Name    string `gorm:"uniqueIndex;not null" json:"name"`
	UserID  uint   `gorm:"not null;index" json:"user_id"` // owner
	Default bool   `gorm:"default:false" json:"default"`

	// Relations
	Owner       User             `gorm:"foreignKey:UserID" json:"owner,omitempty"`
	Roles       []Role           `gorm:"foreignKey:TeamID" json:"roles,omitempty"`
	Memberships []Membership     `gorm:"foreignKey:TeamID" json:"memberships,omitempty"`
	Invitations []TeamInvitation `gorm:"foreignKey:TeamID" json:"invitations,omitempty"`
}

// Membership links a non-owner user to a team with an assigned role.
// Ownership is implicit via Team.UserID and never has a membership row.
type Membership struct {
	gorm.Model
	TeamID uint `gorm:"not null;uniqueIndex:idx_memberships_team_user" json:"team_id"`
	UserID uint `gorm:"not null;uniqueIndex:idx_memberships_team_user" json:"user_id"`
	RoleID uint `gorm:"not null" json:"role_id"`

	// Relations
	Team Team `json:"-"`
	User User `json:"-"`
	Role Role `json:"role,omitempty"`
}

// Role is a per-team named permission bundle. Every team gets its own
// copies of the canonical roles at creation time.
type Role struct {
	gorm.Model
	TeamID uint   `gorm:"not null;uniqueIndex:idx_roles_team_name" json:"team_id"`
	Name   string `gorm:"not null;uniqueIndex:idx_roles_team_name" json:"name"`

	// Relations
	Permissions []Permission `gorm:"foreignKey:RoleID" json:"permissions,omitempty"`
}

// Permission is a named capability attached to a role
type Permission struct {
	gorm.Model
	RoleID uint   `gorm:"not null;uniqueIndex:idx_permissions_role_name" json:"role_id"`
	TeamID uint   `gorm:"not null;index" json:"team_id"`
	Name   string `gorm:"not null;uniqueIndex:idx_permissions_role_name" json:"name"`
}

// TeamInvitation is a pending offer for an email address to join a team
type TeamInvitation struct {
	gorm.Model
	TeamID uint   `gorm:"not null;uniqueIndex:idx_invitations_team_email" json:"team_id"`
	Email  string `gorm:"not null;uniqueIndex:idx_invitations_team_email" json:"email"`
	RoleID uint   `gorm:"not null" json:"role_id"`

	// Relations
	Team Team `json:"-"`
	Role Role `json:"role,omitempty"`
}

// AllUsers returns the team's members including its owner.
func (t *Team) AllUsers(db *gorm.DB) ([]User, error) {
	var users []User
	err := db.Joins("JOIN memberships ON memberships.user_id = users.id AND memberships.deleted_at IS NULL").
		Where("memberships.team_id = ?", t.ID).
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	var owner User
	if err := db.First(&owner, t.UserID).Error; err != nil {
		return nil, err
	}
	return append(users, owner), nil
}

// HasUser reports whether the given user is the owner or a member.
func (t *Team) HasUser(db *gorm.DB, user *User) bool {
	if t.UserID == user.ID {
		return true
	}
	var count int64
	db.Model(&Membership{}).Where("team_id = ? AND user_id = ?", t.ID, user.ID).Count(&count)
	return count > 0
}

// HasUserWithEmail reports whether the email belongs to the owner or a member.
func (t *Team) HasUserWithEmail(db *gorm.DB, email string) bool {
	var owner User
	if err := db.First(&owner, t.UserID).Error; err == nil && owner.Email == email {
		return true
	}
	var count int64
	db.Model(&Membership{}).
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.team_id = ? AND users.email = ?", t.ID, email).
		Count(&count)
	return count > 0
}

// RemoveUser detaches the user's membership from the team. The row is
// removed for real so the (team, user) unique index never blocks a re-add.
func (t *Team) RemoveUser(db *gorm.DB, userID uint) error {
	return db.Unscoped().Where("team_id = ? AND user_id = ?", t.ID, userID).Delete(&Membership{}).Error
}
