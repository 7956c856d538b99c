package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "teamgrid/controllers"
	"teamgrid/middleware"
	"teamgrid/session"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB, store session.Store) {
	// Initialize logger
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	authController := controller.NewAuthController(db, store, authLogger)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)
	auth.Post("/refresh", authController.RefreshToken)

	// Google OAuth routes
	auth.Get("/google", authController.GoogleOAuth)
	auth.Get("/google/callback", authController.GoogleOAuthCallback)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Post("/change-password", authController.ChangePassword)
	protectedAuth.Get("/me", authController.GetCurrentUser)

	// Log initialization
	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, store session.Store, hub *controller.TeamHub) {
	// Initialize controllers with their respective loggers
	teamController := controller.NewTeamController(db, store, hub, log.New(os.Stdout, "TEAM: ", log.LstdFlags))
	invitationController := controller.NewInvitationController(db, store, hub, log.New(os.Stdout, "INVITE: ", log.LstdFlags))
	accountController := controller.NewAccountController(db, store, log.New(os.Stdout, "ACCOUNT: ", log.LstdFlags))
	authController := controller.NewAuthController(db, store, log.New(os.Stdout, "AUTH: ", log.LstdFlags))

	// Invitation links are signed and carry their own expiry, so they stay
	// outside the protected group.
	invites := app.Group("/teams/invitations", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	invites.Get("/accept", invitationController.AcceptInvitation)
	invites.Get("/user", invitationController.ShowCreateUserFromInvite)
	invites.Post("/user", invitationController.CreateUserFromInvite)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Routes that act on a team by id only need the authenticated user
	api.Post("/teams", teamController.CreateTeam)
	api.Put("/teams/:id", teamController.UpdateTeam)

	// The rest resolve the session's current team first
	team := api.Group("/teams", middleware.CurrentTeam(store))
	team.Get("/", teamController.GetTeams)
	team.Get("/menu", teamController.GetTeamMenu)
	team.Get("/manage", teamController.Index)
	team.Get("/current", teamController.GetCurrentTeam)
	team.Post("/current", teamController.SetCurrentTeam)
	team.Get("/roles", teamController.GetTeamRoles)
	team.Delete("/:id", teamController.DeleteTeam)

	// Member management
	team.Put("/members/:id", teamController.UpdateMemberRole)
	team.Delete("/members/:id", teamController.RemoveTeamMember)

	// Invitations
	team.Post("/invite", invitationController.InviteViaEmail)
	team.Post("/invitations/:id/resend", invitationController.ResendInvitation)
	team.Delete("/invitations/:id", invitationController.RevokeInvitation)

	// API tokens
	api.Post("/tokens", middleware.CurrentTeam(store), authController.CreateAPIToken)

	// Account removal
	api.Delete("/account", accountController.DeleteAccount)

	// WebSocket channel for team events
	app.Get("/ws/teams/:id", middleware.Protected(), websocket.New(func(c *websocket.Conn) {
		hub.Handle(c)
	}))

	// Log initialization
	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, store session.Store, hub *controller.TeamHub) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	SetupAuthRoutes(app, db, store)

	// Setup API routes
	SetupAPIRoutes(app, db, store, hub)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
