package controller

import (
	"errors"
	"log"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"teamgrid/middleware"
	"teamgrid/models"
	"teamgrid/session"
	"teamgrid/utils"
)

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  uint   `json:"role" validate:"required"`
}

type CreateUserFromInviteRequest struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Password string `json:"password" validate:"required,min=8"`
}

type InvitationController struct {
	db     *gorm.DB
	store  session.Store
	hub    *TeamHub
	logger *log.Logger
}

func NewInvitationController(db *gorm.DB, store session.Store, hub *TeamHub, logger *log.Logger) *InvitationController {
	return &InvitationController{db: db, store: store, hub: hub, logger: logger}
}

// sendInvitationMail signs a fresh accept URL and mails it. Called in a
// goroutine so SMTP latency never holds up the response.
func (ic *InvitationController) sendInvitationMail(invitation *models.TeamInvitation, teamName string) {
	actionURL, err := utils.SignInvitationURL(invitation.ID, utils.PurposeInvitationAccept)
	if err != nil {
		LogError("invitation_sign", err, map[string]interface{}{"invitation_id": invitation.ID})
		return
	}
	if err := utils.SendTeamInvitationEmail(invitation.Email, teamName, actionURL); err != nil {
		ic.logger.Printf("Failed to send invitation email to %s: %v", invitation.Email, err)
	}
}

// InviteViaEmail invites an email address to the current team. A pending
// invitation for the same address is re-sent rather than duplicated, and
// its role is left untouched.
func (ic *InvitationController) InviteViaEmail(c *fiber.Ctx) error {
	var req InviteRequest
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

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email format",
		})
	}

	user := c.Locals("user").(*models.User)
	team := c.Locals("currentTeam").(*models.Team)

	if !models.HasTeamPermissionWithAbilities(ic.db, user, team, "team:invite", middleware.Abilities(c)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	var role models.Role
	if err := ic.db.Where("id = ? AND team_id = ?", req.Role, team.ID).First(&role).Error; err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "The role does not exist for this team",
		})
	}

	if team.HasUserWithEmail(ic.db, email) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "This user already belongs to the team.",
		})
	}

	var invitation models.TeamInvitation
	err := ic.db.Where("team_id = ? AND email = ?", team.ID, email).First(&invitation).Error
	switch {
	case err == nil:
		// Pending invitation: re-send with a fresh link, keep the role
		if err := ic.db.Model(&invitation).Update("updated_at", ic.db.NowFunc()).Error; err != nil {
			ic.logger.Printf("Failed to touch invitation %d: %v", invitation.ID, err)
		}
		go ic.sendInvitationMail(&invitation, team.Name)
		return c.JSON(fiber.Map{
			"message": "The invitation has been re-sent.",
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		invitation = models.TeamInvitation{
			TeamID: team.ID,
			Email:  email,
			RoleID: role.ID,
		}
		if err := ic.db.Create(&invitation).Error; err != nil {
			LogError("invitation_create", err, map[string]interface{}{"team_id": team.ID})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create invitation",
			})
		}
		go ic.sendInvitationMail(&invitation, team.Name)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":    "The invitation has been sent.",
			"invitation": invitation,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create invitation",
		})
	}
}

// ResendInvitation re-sends a pending invitation with a freshly signed link.
func (ic *InvitationController) ResendInvitation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	team := c.Locals("currentTeam").(*models.Team)

	if !models.HasTeamPermissionWithAbilities(ic.db, user, team, "team:invite", middleware.Abilities(c)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	var invitation models.TeamInvitation
	if err := ic.db.Where("team_id = ? AND id = ?", team.ID, c.Params("id")).First(&invitation).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invitation not found",
		})
	}

	go ic.sendInvitationMail(&invitation, team.Name)

	return c.JSON(fiber.Map{
		"message": "The invitation has been re-sent.",
	})
}

// RevokeInvitation deletes a pending invitation before it is accepted.
func (ic *InvitationController) RevokeInvitation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	team := c.Locals("currentTeam").(*models.Team)

	if !models.HasTeamPermissionWithAbilities(ic.db, user, team, "team:delete", middleware.Abilities(c)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to perform this action",
		})
	}

	result := ic.db.Unscoped().Where("team_id = ? AND id = ?", team.ID, c.Params("id")).Delete(&models.TeamInvitation{})
	if result.Error != nil {
		LogError("invitation_revoke", result.Error, map[string]interface{}{"team_id": team.ID})
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

// AcceptInvitation consumes a signed accept link. When an account already
// exists for the invited address the membership is attached immediately;
// otherwise the response carries a link to the account creation flow.
// Every verification failure collapses into the same generic error.
func (ic *InvitationController) AcceptInvitation(c *fiber.Ctx) error {
	invitationID, err := utils.VerifyInvitationToken(c.Query("token"), utils.PurposeInvitationAccept)
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "This invitation link is invalid or has expired.",
		})
	}

	var invitation models.TeamInvitation
	if err := ic.db.Preload("Team").First(&invitation, invitationID).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "This invitation link is invalid or has expired.",
		})
	}

	// A link opened while signed in as someone else is rejected outright
	if bearer := bearerToken(c); bearer != "" {
		if claims, err := utils.ParseJWTToken(bearer); err == nil {
			var viewer models.User
			if err := ic.db.First(&viewer, claims.UserID).Error; err == nil && !strings.EqualFold(viewer.Email, invitation.Email) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "This invitation was sent to a different email address.",
				})
			}
		}
	}

	var user models.User
	err = ic.db.Where("email = ?", invitation.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		createURL, err := utils.SignInvitationURL(invitation.ID, utils.PurposeInvitationCreateUser)
		if err != nil {
			LogError("invitation_sign", err, map[string]interface{}{"invitation_id": invitation.ID})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process invitation",
			})
		}
		return c.JSON(fiber.Map{
			"requires_account": true,
			"redirect_url":     createURL,
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process invitation",
		})
	}

	teamName := invitation.Team.Name
	teamID := invitation.TeamID

	if err := models.AcceptInvitation(ic.db, &invitation, &user); err != nil {
		LogError("invitation_accept", err, map[string]interface{}{"invitation_id": invitation.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to accept invitation",
		})
	}

	ic.hub.Broadcast(teamID, EventInvitationAccepted, fiber.Map{
		"team_id": teamID,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	}, sessionID(c))

	return c.JSON(fiber.Map{
		"message": "You have joined " + teamName + ".",
		"team_id": teamID,
	})
}

// ShowCreateUserFromInvite returns the prefill payload for the account
// creation form behind a signed create-user link.
func (ic *InvitationController) ShowCreateUserFromInvite(c *fiber.Ctx) error {
	invitationID, err := utils.VerifyInvitationToken(c.Query("token"), utils.PurposeInvitationCreateUser)
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "This invitation link is invalid or has expired.",
		})
	}

	var invitation models.TeamInvitation
	if err := ic.db.Preload("Team").First(&invitation, invitationID).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "This invitation link is invalid or has expired.",
		})
	}

	return c.JSON(fiber.Map{
		"invitation_id": invitation.ID,
		"email":         invitation.Email,
		"team":          invitation.Team.Name,
	})
}

// CreateUserFromInvite registers an account for the invited address, joins
// the inviting team and signs the new user in, all in one step.
func (ic *InvitationController) CreateUserFromInvite(c *fiber.Ctx) error {
	var req CreateUserFromInviteRequest
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

	invitationID, err := utils.VerifyInvitationToken(req.Token, utils.PurposeInvitationCreateUser)
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "This invitation link is invalid or has expired.",
		})
	}

	var invitation models.TeamInvitation
	if err := ic.db.Preload("Team").First(&invitation, invitationID).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "This invitation link is invalid or has expired.",
		})
	}

	var existing models.User
	if err := ic.db.Where("email = ?", invitation.Email).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An account with this email already exists. Use the invitation link to sign in instead.",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	user := models.User{
		Email:        invitation.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
	}
	if err := ic.db.Create(&user).Error; err != nil {
		LogError("invite_user_create", err, map[string]interface{}{"invitation_id": invitation.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	if _, err := models.CreatePersonalTeam(ic.db, &user); err != nil {
		LogError("invite_personal_team", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	teamID := invitation.TeamID
	teamName := invitation.Team.Name

	if err := models.AcceptInvitation(ic.db, &invitation, &user); err != nil {
		LogError("invitation_accept", err, map[string]interface{}{"invitation_id": invitation.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to join team",
		})
	}

	accessToken, refreshToken, newSession, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate tokens",
		})
	}

	// The fresh session starts in the team that invited the user
	if err := ic.store.Set(c.Context(), newSession, session.CurrentTeam{
		TeamID:   teamID,
		TeamName: teamName,
	}); err != nil {
		ic.logger.Printf("Failed to seed current team for session: %v", err)
	}

	go func() {
		if err := utils.SendWelcomeEmail(user.Email, user.FirstName()); err != nil {
			ic.logger.Printf("Failed to send welcome email: %v", err)
		}
	}()

	ic.hub.Broadcast(teamID, EventInvitationAccepted, fiber.Map{
		"team_id": teamID,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	}, newSession)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
		"team_id":       teamID,
	})
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Cookies("access_token")
}
