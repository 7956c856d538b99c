package models

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &Team{}, &Role{}, &Permission{}, &Membership{}, &TeamInvitation{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, name, email string) *User {
	t.Helper()

	user := &User{Name: name, Email: email, PasswordHash: "x", IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}

func mustCreateTeam(t *testing.T, db *gorm.DB, owner *User, name string, markAsDefault bool) *Team {
	t.Helper()

	team, err := CreateTeam(db, owner, name, markAsDefault)
	if err != nil {
		t.Fatalf("failed to create team %s: %v", name, err)
	}
	return team
}

func roleByName(t *testing.T, db *gorm.DB, team *Team, name string) *Role {
	t.Helper()

	var role Role
	if err := db.Where("team_id = ? AND name = ?", team.ID, name).First(&role).Error; err != nil {
		t.Fatalf("failed to find role %s on team %d: %v", name, team.ID, err)
	}
	return &role
}

func addMember(t *testing.T, db *gorm.DB, team *Team, user *User, roleName string) {
	t.Helper()

	role := roleByName(t, db, team, roleName)
	if err := AddTeamMember(db, team, user.Email, role.ID); err != nil {
		t.Fatalf("failed to add %s to team %d: %v", user.Email, team.ID, err)
	}
}
