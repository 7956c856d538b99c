package models

import (
	"gorm.io/gorm"
)

// Canonical role names seeded for every team
const (
	RoleAdministrator = "admin"
	RoleStandard      = "standard"
	RoleLite          = "lite"
)

// RoleLabels maps role names to their display labels
var RoleLabels = map[string]string{
	RoleAdministrator: "Administrator",
	RoleStandard:      "Standard",
	RoleLite:          "Lite",
}

// RoleDescriptions maps role names to their user-facing descriptions
var RoleDescriptions = map[string]string{
	RoleAdministrator: "Administrator user can perform any action on the team records and settings.",
	RoleStandard:      "Standard user have the ability to read, create, and update.",
	RoleLite:          "Lite can only read data.",
}

// RolePermissionSets is the fixed permission matrix: admin gets the full
// feature/action set, standard everything except delete/invite/api actions,
// lite read-only. Computed once at build time rather than filtered per
// request.
var RolePermissionSets = map[string][]string{
	RoleAdministrator: {
		"team:create", "team:read", "team:update", "team:delete", "team:remove", "team:invite", "team:api",
		"contact:create", "contact:read", "contact:update", "contact:delete",
	},
	RoleStandard: {
		"team:create", "team:read", "team:update", "team:remove",
		"contact:create", "contact:read", "contact:update",
	},
	RoleLite: {
		"team:read",
		"contact:read",
	},
}

// CanonicalRoleNames returns the seeded role names in display order.
func CanonicalRoleNames() []string {
	return []string{RoleAdministrator, RoleStandard, RoleLite}
}

// CreateRolePermissions seeds the three canonical roles and their permission
// sets for the given team. Upserts are keyed by (team, name) so running it
// twice leaves the catalog unchanged. Callers run it inside the team
// creation transaction; a team must never be observable without its roles.
func CreateRolePermissions(db *gorm.DB, team *Team) error {
	for _, roleName := range CanonicalRoleNames() {
		role := Role{TeamID: team.ID, Name: roleName}
		if err := db.Where("team_id = ? AND name = ?", team.ID, roleName).
			FirstOrCreate(&role).Error; err != nil {
			return err
		}

		for _, permission := range RolePermissionSets[roleName] {
			perm := Permission{RoleID: role.ID, TeamID: team.ID, Name: permission}
			if err := db.Where("role_id = ? AND name = ?", role.ID, permission).
				FirstOrCreate(&perm).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
