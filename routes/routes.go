package routes

import (
	"lanos_go/controllers"
	"lanos_go/middleware"

	"github.com/gofiber/fiber/v2"
)

// Controllers bundles the handlers SetupRoutes mounts.
type Controllers struct {
	Forms     *controllers.FormController
	Admin     *controllers.AdminController
	Health    *controllers.HealthController
	WebSocket *controllers.WebSocketController
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Controllers) {
	app.Get("/health", h.Health.GetHealthStatus)

	api := app.Group("/api")

	// Public form routes
	api.Get("/forms", h.Forms.ListForms)
	api.Get("/forms/:form", h.Forms.GetForm)
	api.Post("/forms/:form/sessions", h.Forms.OpenSession)
	api.Post("/forms/:form/submit", h.Forms.Submit)

	sessions := api.Group("/sessions")
	sessions.Get("/:id", h.Forms.GetSession)
	sessions.Patch("/:id", h.Forms.UpdateSession)
	sessions.Delete("/:id", h.Forms.CloseSession)
	sessions.Post("/:id/submit", h.Forms.SubmitSession)
	sessions.Post("/:id/acknowledge", h.Forms.AcknowledgeSession)

	// Admin dashboard
	api.Post("/admin/login", h.Admin.Login)
	admin := api.Group("/admin", middleware.JWTMiddleware(), middleware.RequireRole("admin"))
	admin.Get("/statistics", h.Admin.GetStatistics)
	admin.Get("/registrations", h.Admin.GetRegistrations)
	admin.Get("/registrations/export", h.Admin.ExportRegistrations)
	admin.Get("/referral-codes", h.Admin.GetReferralCodes)
	admin.Get("/referral-codes/validate/:code", h.Admin.ValidateReferralCode)
	admin.Get("/submissions", h.Admin.GetSubmissions)
	admin.Get("/ws/stats", h.WebSocket.GetWebSocketStats)

	// Live submission feed; the token travels in the query string because
	// browsers cannot set headers on WebSocket upgrades.
	app.Get("/ws/admin", h.WebSocket.Upgrade, h.WebSocket.WebSocketHandler())
}
