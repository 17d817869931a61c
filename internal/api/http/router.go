package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-intake/internal/auth"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Staff          *handlers.StaffHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)

	authed := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	authed.Get("/auth/me", cfg.Auth.Me)
	authed.Post("/auth/password/change", cfg.Auth.ChangePassword)
	authed.Get("/departments", cfg.Staff.ListDepartments)

	tickets := authed.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/attachments/:attachmentId", cfg.Tickets.DownloadAttachment)
	tickets.Post("/:id/update", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	staff := authed.Group("/staff", auth.RequireStaff())
	staff.Post("/tickets/:id/respond", cfg.StaffTickets.Respond)
	staff.Post("/tickets/:id/return", cfg.StaffTickets.Return)
	staff.Post("/tickets/:id/priority", cfg.StaffTickets.ChangePriority)

	officers := staff.Group("", auth.RequireRole(domain.RoleProgramOfficer))
	officers.Get("/tickets/:id/candidates", cfg.StaffTickets.Candidates)
	officers.Post("/tickets/:id/redirect", cfg.StaffTickets.Redirect)
	officers.Get("/tickets/:id/merge-suggestions", cfg.StaffTickets.MergeSuggestions)
	officers.Post("/tickets/:id/merge/:candidateId", cfg.StaffTickets.ToggleMerge)
	officers.Get("/members", cfg.Staff.ListStaff)
	officers.Post("/members", cfg.Staff.CreateStaff)
	officers.Get("/reports/closures", cfg.Staff.ClosureReport)
	officers.Get("/reports/closures.xlsx", cfg.Staff.ExportClosureReport)
}
