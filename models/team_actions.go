package models

import (
	"errors"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Domain errors surfaced to users as notices, never as server failures.
var (
	ErrTeamNameTaken    = errors.New("a team with this name already exists")
	ErrLastOwnedTeam    = errors.New("you must own at least one team")
	ErrNoDefaultTeam    = errors.New("choose another team to be default first")
	ErrAlreadyOnTeam    = errors.New("this user already belongs to the team")
	ErrRoleNotInTeam    = errors.New("the role does not exist for this team")
	ErrUserNotFound     = errors.New("we were unable to find a registered user with this email address")
	ErrNotTeamOwner     = errors.New("only the team owner may perform this action")
	ErrCannotEditSelf   = errors.New("you cannot change your own membership")
	ErrMemberNotFound   = errors.New("the user is not a member of this team")
	ErrInvitationExists = errors.New("an invitation for this email is already pending")
)

// NormalizeTeamName title-cases the name and suffixes " Team" unless the
// name already ends with "Team".
func NormalizeTeamName(name string) string {
	name = strings.TrimSpace(name)
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	normalized := strings.Join(words, " ")
	if strings.HasSuffix(normalized, "Team") {
		return normalized
	}
	return normalized + " Team"
}

// PersonalTeamName builds the default team name for a freshly registered
// user, e.g. "Bob's Team".
func PersonalTeamName(user *User) string {
	first := user.FirstName()
	if first == "" {
		return "Personal Team"
	}
	if strings.HasSuffix(first, "s") || strings.HasSuffix(first, "S") {
		return first + "' Team"
	}
	return first + "'s Team"
}

// CreateTeam creates a team for the owner and seeds its role catalog in a
// single transaction. When markAsDefault is set, the owner's other teams
// lose their default flag first so at most one default team ever exists.
func CreateTeam(db *gorm.DB, owner *User, name string, markAsDefault bool) (*Team, error) {
	name = NormalizeTeamName(name)

	var count int64
	if err := db.Model(&Team{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrTeamNameTaken
	}

	team := &Team{
		UserID:  owner.ID,
		Name:    name,
		Default: markAsDefault,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if markAsDefault {
			if err := tx.Model(&Team{}).Where("user_id = ?", owner.ID).
				Update("default", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		return CreateRolePermissions(tx, team)
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// CreatePersonalTeam creates the user's own default team at registration.
func CreatePersonalTeam(db *gorm.DB, user *User) (*Team, error) {
	return CreateTeam(db, user, PersonalTeamName(user), true)
}

// UpdateTeam renames the team and moves the default flag. The name passes
// through the same normalization as creation and must be globally unique
// ignoring the team itself. Clearing the default flag without another owned
// team taking it over is rejected; setting it clears the flag on the
// owner's other teams first.
func UpdateTeam(db *gorm.DB, owner *User, team *Team, name string, markAsDefault bool) error {
	name = NormalizeTeamName(name)

	var count int64
	if err := db.Model(&Team{}).Where("name = ? AND id <> ?", name, team.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrTeamNameTaken
	}

	if team.Default && !markAsDefault {
		// turning default off needs another default team to exist already
		var others int64
		if err := db.Model(&Team{}).
			Where("user_id = ? AND id <> ? AND \"default\" = ?", owner.ID, team.ID, true).
			Count(&others).Error; err != nil {
			return err
		}
		if others == 0 {
			return ErrNoDefaultTeam
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if markAsDefault && !team.Default {
			if err := tx.Model(&Team{}).Where("user_id = ? AND id <> ?", owner.ID, team.ID).
				Update("default", false).Error; err != nil {
				return err
			}
		}
		team.Name = name
		team.Default = markAsDefault
		return tx.Save(team).Error
	})
}

// DeleteTeam removes the team with all its roles, permissions, memberships
// and pending invitations in one transaction. The owner's last team may
// never be deleted. Returns the team the caller's session should repoint
// to: when the deleted team was the default, an arbitrary remaining owned
// team is promoted to default and returned.
func DeleteTeam(db *gorm.DB, owner *User, team *Team) (*Team, error) {
	if !OwnsTeam(owner, team) {
		return nil, ErrNotTeamOwner
	}

	var owned int64
	if err := db.Model(&Team{}).Where("user_id = ?", owner.ID).Count(&owned).Error; err != nil {
		return nil, err
	}
	if owned <= 1 {
		return nil, ErrLastOwnedTeam
	}

	// Hard deletes throughout: the unique indexes on names, memberships
	// and invitations must not trip over soft-deleted leftovers.
	var replacement Team
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&Permission{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&Role{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&Membership{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&TeamInvitation{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(team).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", owner.ID).Order("id").First(&replacement).Error; err != nil {
			return err
		}
		if team.Default {
			replacement.Default = true
			if err := tx.Save(&replacement).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &replacement, nil
}

// DefaultTeam returns the user's default owned team, falling back to the
// first owned team when no default flag is set.
func DefaultTeam(db *gorm.DB, user *User) (*Team, error) {
	var team Team
	err := db.Where("user_id = ? AND \"default\" = ?", user.ID, true).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("user_id = ?", user.ID).Order("id").First(&team).Error
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// MemberTeams returns the teams the user joined through a membership.
func MemberTeams(db *gorm.DB, user *User) ([]Team, error) {
	var teams []Team
	err := db.Joins("JOIN memberships ON memberships.team_id = teams.id AND memberships.deleted_at IS NULL").
		Where("memberships.user_id = ?", user.ID).
		Find(&teams).Error
	return teams, err
}

// AllTeams returns the user's owned and joined teams sorted by name.
func AllTeams(db *gorm.DB, user *User) ([]Team, error) {
	var owned []Team
	if err := db.Where("user_id = ?", user.ID).Find(&owned).Error; err != nil {
		return nil, err
	}
	joined, err := MemberTeams(db, user)
	if err != nil {
		return nil, err
	}
	teams := append(owned, joined...)
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

// AddTeamMember attaches the registered user holding the email to the team
// at the given role. The email must belong to an existing account that is
// not already on the team, and the role must be one of the team's own.
func AddTeamMember(db *gorm.DB, team *Team, email string, roleID uint) error {
	var role Role
	if err := db.Where("id = ? AND team_id = ?", roleID, team.ID).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoleNotInTeam
		}
		return err
	}

	var user User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if team.HasUser(db, &user) {
		return ErrAlreadyOnTeam
	}

	return db.Create(&Membership{
		TeamID: team.ID,
		UserID: user.ID,
		RoleID: roleID,
	}).Error
}

// AcceptInvitation attaches the user to the invited team with the
// invitation's role and consumes the invitation row, atomically.
func AcceptInvitation(db *gorm.DB, invitation *TeamInvitation, user *User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var team Team
		if err := tx.First(&team, invitation.TeamID).Error; err != nil {
			return err
		}
		if !team.HasUser(tx, user) {
			if err := tx.Create(&Membership{
				TeamID: invitation.TeamID,
				UserID: user.ID,
				RoleID: invitation.RoleID,
			}).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(invitation).Error
	})
}

// UpdateMemberRole changes an existing member's role, or a pending
// invitation's proposed role, selected by isMember.
func UpdateMemberRole(db *gorm.DB, team *Team, subjectID uint, roleID uint, isMember bool) error {
	var role Role
	if err := db.Where("id = ? AND team_id = ?", roleID, team.ID).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoleNotInTeam
		}
		return err
	}

	if isMember {
		result := db.Model(&Membership{}).
			Where("team_id = ? AND user_id = ?", team.ID, subjectID).
			Update("role_id", roleID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrMemberNotFound
		}
		return nil
	}

	result := db.Model(&TeamInvitation{}).
		Where("team_id = ? AND id = ?", team.ID, subjectID).
		Update("role_id", roleID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// DeleteAccount removes the user after cascading every owned team through
// the team-deletion cleanup, and detaches their memberships elsewhere.
func DeleteAccount(db *gorm.DB, user *User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var owned []Team
		if err := tx.Where("user_id = ?", user.ID).Find(&owned).Error; err != nil {
			return err
		}
		for i := range owned {
			team := &owned[i]
			if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&Permission{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&Role{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&Membership{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("team_id = ?", team.ID).Delete(&TeamInvitation{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Delete(team).Error; err != nil {
				return err
			}
		}
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&Membership{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(user).Error
	})
}
