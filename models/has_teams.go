package models

import (
	"errors"

	"gorm.io/gorm"
)

// PrincipalKind tags how a user relates to a team
type PrincipalKind int

const (
	PrincipalNone PrincipalKind = iota
	PrincipalOwner
	PrincipalMember
)

// Principal is the resolved relationship of a user to a team. Owners carry
// no membership row; members carry the membership with its role id.
type Principal struct {
	Kind       PrincipalKind
	Membership *Membership
}

// ResolvePrincipal determines whether the user owns the team, holds a
// membership in it, or neither.
func ResolvePrincipal(db *gorm.DB, user *User, team *Team) (Principal, error) {
	if OwnsTeam(user, team) {
		return Principal{Kind: PrincipalOwner}, nil
	}

	var membership Membership
	err := db.Where("team_id = ? AND user_id = ?", team.ID, user.ID).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Principal{Kind: PrincipalNone}, nil
	}
	if err != nil {
		return Principal{}, err
	}
	return Principal{Kind: PrincipalMember, Membership: &membership}, nil
}

// OwnsTeam reports whether the user is the team's owner.
func OwnsTeam(user *User, team *Team) bool {
	return user.ID == team.UserID
}

// BelongsToTeam reports whether the user owns the team or holds a membership.
func BelongsToTeam(db *gorm.DB, user *User, team *Team) bool {
	principal, err := ResolvePrincipal(db, user, team)
	if err != nil {
		return false
	}
	return principal.Kind != PrincipalNone
}

// TeamRole resolves the user's effective role on the team. Owners always
// resolve to the team's admin role regardless of membership rows; this is
// the deliberate owner bypass, not a fallback. Returns nil when the user
// does not belong to the team.
func TeamRole(db *gorm.DB, user *User, team *Team) (*Role, error) {
	principal, err := ResolvePrincipal(db, user, team)
	if err != nil {
		return nil, err
	}

	switch principal.Kind {
	case PrincipalOwner:
		var role Role
		if err := db.Where("team_id = ? AND name = ?", team.ID, RoleAdministrator).First(&role).Error; err != nil {
			return nil, err
		}
		return &role, nil
	case PrincipalMember:
		var role Role
		if err := db.First(&role, principal.Membership.RoleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &role, nil
	default:
		return nil, nil
	}
}

// TeamPermissions returns the names of the user's permissions on the team,
// or nil when the user does not belong to it.
func TeamPermissions(db *gorm.DB, user *User, team *Team) ([]string, error) {
	role, err := TeamRole(db, user, team)
	if err != nil || role == nil {
		return nil, err
	}

	var names []string
	if err := db.Model(&Permission{}).Where("role_id = ?", role.ID).Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// HasTeamPermission reports whether the user holds the permission on the
// team. Owners short-circuit to true; non-members to false. The check never
// returns an error to callers: any missing relationship reads as a denial.
func HasTeamPermission(db *gorm.DB, user *User, team *Team, permission string) bool {
	return HasTeamPermissionWithAbilities(db, user, team, permission, nil)
}

// HasTeamPermissionWithAbilities applies the same role check intersected
// with an API token's ability list. A nil ability list means the principal
// is an unrestricted web session; a non-nil list must also allow the
// permission (or carry the "*" wildcard) for the check to pass. The token
// scope binds owners too; only the role check is bypassed for them.
func HasTeamPermissionWithAbilities(db *gorm.DB, user *User, team *Team, permission string, abilities []string) bool {
	if abilities != nil && !abilityAllows(abilities, permission) {
		return false
	}

	if OwnsTeam(user, team) {
		return true
	}

	principal, err := ResolvePrincipal(db, user, team)
	if err != nil || principal.Kind == PrincipalNone {
		return false
	}

	permissions, err := TeamPermissions(db, user, team)
	if err != nil {
		return false
	}
	for _, name := range permissions {
		if name == permission || name == "*" {
			return true
		}
	}
	return false
}

func abilityAllows(abilities []string, permission string) bool {
	for _, ability := range abilities {
		if ability == permission || ability == "*" {
			return true
		}
	}
	return false
}
