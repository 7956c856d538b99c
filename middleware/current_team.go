package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"teamgrid/config"
	"teamgrid/models"
	"teamgrid/session"
)

// CurrentTeam resolves the session's current-team pointer and stashes the
// team row in locals for team-scoped handlers. When the session has no
// pointer yet (fresh login, expired entry) it is recomputed from the user's
// default owned team.
func CurrentTeam(store session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals("user").(*models.User)
		sessionID := c.Locals("sessionID").(string)

		current, err := store.Get(c.Context(), sessionID)
		if err != nil && !errors.Is(err, session.ErrNoCurrentTeam) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to resolve current team",
			})
		}

		var team models.Team
		if current != nil {
			err = config.DB.First(&team, current.TeamID).Error
		}
		if current == nil || err != nil {
			defaultTeam, derr := models.DefaultTeam(config.DB, user)
			if derr != nil {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "No team available for this account",
				})
			}
			team = *defaultTeam
			_ = store.Set(c.Context(), sessionID, session.CurrentTeam{
				TeamID:   team.ID,
				TeamName: team.Name,
			})
		}

		c.Locals("currentTeam", &team)
		return c.Next()
	}
}
