package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"teamgrid/middleware"
	"teamgrid/models"
	"teamgrid/session"
	"teamgrid/utils"
)

// sessionID returns the session identifier set by the auth middleware.
func sessionID(c *fiber.Ctx) string {
	id, _ := c.Locals("sessionID").(string)
	return id
}

type CreateTeamRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Default bool   `json:"default"`
}

type UpdateTeamRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Default bool   `json:"default"`
}

type DeleteTeamRequest struct {
	Password string `json:"password"`
}

type SwitchTeamRequest struct {
	Team uint `json:"team" validate:"required"`
}

type UpdateMemberRoleRequest struct {
	Role     uint  `json:"role" validate:"required"`
	IsMember *bool `json:"isMember" validate:"required"`
}

type RemoveMemberRequest struct {
	IsMember *bool `json:"isMember" validate:"required"`
}

type TeamController struct {
	db     *gorm.DB
	store  session.Store
	hub    *TeamHub
	logger *log.Logger
}

func NewTeamController(db *gorm.DB, store session.Store, hub *TeamHub, logger *log.Logger) *TeamController {
	return &TeamController{db: db, store: store, hub: hub, logger: logger}
}

// teamMenuEntry mirrors the payload broadcast with team events so clients
// can patch their team switcher in place.
func teamMenuEntry(team *models.Team, current bool) fiber.Map {
	return fiber.Map{
		"id":           team.ID,
		"label":        team.Name,
		"current_team": current,
		"default":      team.Default,
	}
}

// Index returns the management payload for the current team: its members,
// pending invitations and the role catalog.
func (tc *TeamController) Index(c *fiber.Ctx) error {
	team := c.Locals("currentTeam").(*models.Team)

	users, err := team.AllUsers(tc.db)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load team members",
		})
	}

	var invitations []models.TeamInvitation
	if err := tc.db.Where("team_id = ?", team.ID).Find(&invitations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load invitations",
		})
	}

	var roles []models.Role
	if err := tc.db.Where("team_id = ?", team.ID).Find(&roles).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load roles",
		})
	}

	rolesPayload := make([]fiber.Map, 0, len(roles))
	for _, role := range roles {
		rolesPayload = append(rolesPayload, fiber.Map{
			"id":          role.ID,
			"name":        role.Name,
			"label":       models.RoleLabels[role.Name],
			"description": models.RoleDescriptions[role.Name],
		})
	}

	return c.JSON(fiber.Map{
		"team": team,
		"members": fiber.Map{
			"invited": invitations,
			"members": users,
		},
		"roles_permissions": rolesPayload,
	})
}

func (tc *TeamController) CreateTeam(c *fiber.Ctx) error {
	var req CreateTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user := c.Locals("user").(*models.User)

	team, err := models.CreateTeam(tc.db, user, req.Name, req.Default)
	if errors.Is(err, models.ErrTeamNameTaken) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Try again a different team name.",
		})
	}
	if err != nil {
		LogError("team_create", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create team",
		})
	}

	tc.hub.Broadcast(team.ID, EventTeamCreated, teamMenuEntry(team, false), sessionID(c))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"team": team,
	})
}

func (tc *TeamController) UpdateTeam(c *fiber.Ctx) error {
	var req UpdateTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user := c.Locals("user").(*models.User)

	var team models.Team
	if err := tc.db.First(&team, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Team not found",
		})
	}

	if !models.OwnsTeam(user, &team) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	err := models.UpdateTeam(tc.db, user, &team, req.Name, req.Default)
	switch {
	case errors.Is(err, models.ErrTeamNameTaken):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Try again a different team name.",
		})
	case errors.Is(err, models.ErrNoDefaultTeam):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Choose another team to be default first.",
		})
	case err != nil:
		LogError("team_update", err, map[string]interface{}{"team_id": team.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update team",
		})
	}

	tc.hub.Broadcast(team.ID, EventTeamUpdated, teamMenuEntry(&team, false), sessionID(c))

	return c.JSON(fiber.Map{
		"message": "The team has been updated successfully.",
		"team":    team,
	})
}

func (tc *TeamController) DeleteTeam(c *fiber.Ctx) error {
	var req DeleteTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user := c.Locals("user").(*models.User)

	var team models.Team
	if err := tc.db.First(&team, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Team not found",
		})
	}

	// Deletion is an ownership check, never a permission grant
	if !models.OwnsTeam(user, &team) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid password",
			})
		}
	}

	deletedEntry := teamMenuEntry(&team, false)
	wasCurrent := false
	if current := c.Locals("currentTeam").(*models.Team); current.ID == team.ID {
		wasCurrent = true
	}

	replacement, err := models.DeleteTeam(tc.db, user, &team)
	if errors.Is(err, models.ErrLastOwnedTeam) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "You must own at least one team. Create another team before deleting this one.",
		})
	}
	if err != nil {
		LogError("team_delete", err, map[string]interface{}{"team_id": team.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete team",
		})
	}

	if wasCurrent {
		if err := tc.store.Set(c.Context(), sessionID(c), session.CurrentTeam{
			TeamID:   replacement.ID,
			TeamName: replacement.Name,
		}); err != nil {
			tc.logger.Printf("Failed to repoint session after team delete: %v", err)
		}
	}

	tc.hub.Broadcast(team.ID, EventTeamDeleted, deletedEntry, sessionID(c))

	return c.JSON(fiber.Map{
		"message":      "The team has been deleted successfully.",
		"current_team": replacement,
	})
}

// GetTeams lists the teams the user joined through an invitation.
func (tc *TeamController) GetTeams(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	teams, err := models.MemberTeams(tc.db, user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load teams",
		})
	}

	return c.JSON(fiber.Map{
		"teams": teams,
	})
}

// GetTeamMenu lists every team the user can act in, shaped for the team
// switcher menu.
func (tc *TeamController) GetTeamMenu(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	current := c.Locals("currentTeam").(*models.Team)

	teams, err := models.AllTeams(tc.db, user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load teams",
		})
	}

	menu := make([]fiber.Map, 0, len(teams))
	for i := range teams {
		menu = append(menu, teamMenuEntry(&teams[i], teams[i].ID == current.ID))
	}
	return c.JSON(menu)
}

func (tc *TeamController) GetCurrentTeam(c *fiber.Ctx) error {
	team := c.Locals("currentTeam").(*models.Team)
	return c.JSON(fiber.Map{
		"current_team": team,
	})
}

func (tc *TeamController) SetCurrentTeam(c *fiber.Ctx) error {
	var req SwitchTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user := c.Locals("user").(*models.User)

	var team models.Team
	if err := tc.db.First(&team, req.Team).Error; err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "The team does not exist",
		})
	}

	if !models.BelongsToTeam(tc.db, user, &team) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	if err := tc.store.Set(c.Context(), sessionID(c), session.CurrentTeam{
		TeamID:   team.ID,
		TeamName: team.Name,
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to switch team",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Team switched successfully",
	})
}

// GetTeamRoles returns the current team's role catalog with display labels.
func (tc *TeamController) GetTeamRoles(c *fiber.Ctx) error {
	team := c.Locals("currentTeam").(*models.Team)

	var roles []models.Role
	if err := tc.db.Where("team_id = ?", team.ID).Find(&roles).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load roles",
		})
	}

	payload := make([]fiber.Map, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, fiber.Map{
			"id":          role.ID,
			"name":        role.Name,
			"label":       models.RoleLabels[role.Name],
			"description": models.RoleDescriptions[role.Name],
		})
	}
	return c.JSON(payload)
}

// RemoveTeamMember detaches a member, or deletes a pending invitation when
// isMember is false. Both paths are gated by the team:delete permission.
func (tc *TeamController) RemoveTeamMember(c *fiber.Ctx) error {
	var req RemoveMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user := c.Locals("user").(*models.User)
	team := c.Locals("currentTeam").(*models.Team)

	if !models.HasTeamPermissionWithAbilities(tc.db, user, team, "team:delete", middleware.Abilities(c)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	subjectID := utils.ParseUint(c.Params("id"))

	if *req.IsMember {
		if subjectID == user.ID {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "You cannot remove yourself from the team.",
			})
		}

		var membership models.Membership
		if err := tc.db.Where("team_id = ? AND user_id = ?", team.ID, subjectID).First(&membership).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "The user is not a member of this team",
			})
		}
		if err := team.RemoveUser(tc.db, subjectID); err != nil {
			LogError("member_remove", err, map[string]interface{}{"team_id": team.ID, "user_id": subjectID})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to remove team member",
			})
		}

		tc.hub.Broadcast(team.ID, EventMemberRemoved, fiber.Map{
			"team_id": team.ID,
			"user_id": subjectID,
		}, sessionID(c))

		return c.JSON(fiber.Map{
			"message": "The team member has been removed.",
		})
	}

	// Revoking a pending invitation shares the endpoint and the gate
	result := tc.db.Unscoped().Where("team_id = ? AND id = ?", team.ID, subjectID).Delete(&models.TeamInvitation{})
	if result.Error != nil {
		LogError("invitation_revoke", result.Error, map[string]interface{}{"team_id": team.ID, "invitation_id": subjectID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to revoke invitation",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invitation not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "The invitation has been revoked.",
	})
}

// UpdateMemberRole changes a member's role, or a pending invitation's
// proposed role when isMember is false. Own-role changes are rejected.
func (tc *TeamController) UpdateMemberRole(c *fiber.Ctx) error {
	var req UpdateMemberRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user := c.Locals("user").(*models.User)
	team := c.Locals("currentTeam").(*models.Team)

	if !models.HasTeamPermissionWithAbilities(tc.db, user, team, "team:update", middleware.Abilities(c)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	subjectID := utils.ParseUint(c.Params("id"))

	if *req.IsMember && subjectID == user.ID {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "You cannot update your own role. Please contact the team owner to update your role.",
		})
	}

	err := models.UpdateMemberRole(tc.db, team, subjectID, req.Role, *req.IsMember)
	switch {
	case errors.Is(err, models.ErrRoleNotInTeam):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "The role does not exist for this team",
		})
	case errors.Is(err, models.ErrMemberNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "The user is not a member of this team",
		})
	case err != nil:
		LogError("member_role_update", err, map[string]interface{}{"team_id": team.ID, "subject_id": subjectID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update role",
		})
	}

	return c.JSON(fiber.Map{
		"message": "The role has been updated successfully.",
	})
}
