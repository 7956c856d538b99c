package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"teamgrid/models"
	"teamgrid/session"
	"teamgrid/utils"
)

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type AccountController struct {
	db     *gorm.DB
	store  session.Store
	logger *log.Logger
}

func NewAccountController(db *gorm.DB, store session.Store, logger *log.Logger) *AccountController {
	return &AccountController{db: db, store: store, logger: logger}
}

// DeleteAccount removes the user, every team they own and all of their
// memberships. Accounts with a local password must re-confirm it.
func (ac *AccountController) DeleteAccount(c *fiber.Ctx) error {
	var req DeleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	user := c.Locals("user").(*models.User)

	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid password", nil)
		}
	}

	if err := models.DeleteAccount(ac.db, user); err != nil {
		LogError("account_delete", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete account", nil)
	}

	if err := ac.store.Delete(c.Context(), sessionID(c)); err != nil {
		ac.logger.Printf("Failed to clear session %s: %v", sessionID(c), err)
	}

	LogEvent("account_deleted", map[string]interface{}{"user_id": user.ID})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Your account has been deleted.",
	}))
}
