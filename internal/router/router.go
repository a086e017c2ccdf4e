package router // package router defines how HTTP routes are registered for the API

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/handler"
	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/model"
)

// Rate-limit budgets per action.  Windows are sliding; exhausting one earns
// a block that outlives the window.
const (
	registerMax, registerWindow = 5, 15 * time.Minute
	loginMax, loginWindow       = 10, 15 * time.Minute
	refreshMax, refreshWindow   = 30, 15 * time.Minute
	orderMax, orderWindow       = 5, time.Hour
	verifyMax, verifyWindow     = 15, 15 * time.Minute
	ticketMax, ticketWindow     = 10, time.Hour
	messageMax, messageWindow   = 30, 15 * time.Minute
)

// Deps carries everything route registration needs.
type Deps struct {
	Guard    *middleware.Guard
	Limiter  middleware.RateLimitStore
	CacheCfg config.CacheConfig
	Redis    *redis.Client

	Auth    *handler.AuthHandler
	Orders  *handler.OrderHandler
	Payment *handler.PaymentHandler
	Tickets *handler.TicketHandler
	Gallery *handler.GalleryHandler
	Admin   *handler.AdminHandler
}

// RegisterRoutes wires every endpoint under /api/v1 plus the health check.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	api := e.Group("/api/v1")
	registerAuth(api, d)
	registerPublic(api, d)
	registerOrders(api, d)
	registerPayments(api, d)
	registerTickets(api, d)
	registerAdmin(api, d)
}

// registerAuth wires session endpoints.  Register/login/refresh are
// rate-limited per client address before any credential work happens.
func registerAuth(api *echo.Group, d Deps) {
	g := api.Group("/auth")
	g.POST("/register", d.Auth.Register, middleware.RateLimit(d.Limiter, "register", registerMax, registerWindow))
	g.POST("/login", d.Auth.Login, middleware.RateLimit(d.Limiter, "login", loginMax, loginWindow))
	g.POST("/refresh", d.Auth.Refresh, middleware.RateLimit(d.Limiter, "refresh", refreshMax, refreshWindow))
	// Logout works with or without a live access token.
	g.POST("/logout", d.Auth.Logout, d.Guard.OptionalAuth())
	g.GET("/me", d.Auth.Me, d.Guard.RequireAuth())
}

// registerPublic wires unauthenticated browse endpoints.  Both are
// read-mostly and served through the Redis response cache.
func registerPublic(api *echo.Group, d Deps) {
	cache := middleware.ResponseCache(d.CacheCfg, d.Redis)
	api.GET("/pricing", d.Orders.GetPricing, cache)
	api.GET("/gallery", d.Gallery.ListPublic, cache)
}

// registerOrders wires order creation and customer-facing order reads.
// Creation accepts guests, so auth is optional there.
func registerOrders(api *echo.Group, d Deps) {
	api.POST("/orders", d.Orders.Create,
		d.Guard.OptionalAuth(),
		middleware.RateLimit(d.Limiter, "order_create", orderMax, orderWindow))
	api.GET("/orders/mine", d.Orders.ListMine, d.Guard.RequireAuth())
	api.GET("/orders/:id", d.Orders.Get, d.Guard.RequireAuth())
}

// registerPayments wires the three payment entry points.  The webhook is
// authenticated by its body signature, never by a session.
func registerPayments(api *echo.Group, d Deps) {
	api.POST("/payments/order", d.Payment.CreatePaymentOrder,
		middleware.RateLimit(d.Limiter, "payment_verify", verifyMax, verifyWindow))
	api.POST("/payments/verify", d.Payment.Verify,
		d.Guard.OptionalAuth(),
		middleware.RateLimit(d.Limiter, "payment_verify", verifyMax, verifyWindow))
	api.POST("/payments/webhook", d.Payment.Webhook)
}

// registerTickets wires the customer side of the ticket system.
func registerTickets(api *echo.Group, d Deps) {
	g := api.Group("/tickets", d.Guard.RequireAuth())
	g.POST("", d.Tickets.Create, middleware.RateLimit(d.Limiter, "ticket_create", ticketMax, ticketWindow))
	g.GET("", d.Tickets.ListMine)
	g.GET("/:id", d.Tickets.Get)
	g.POST("/:id/messages", d.Tickets.AddMessage, middleware.RateLimit(d.Limiter, "message_create", messageMax, messageWindow))
	g.PATCH("/:id/status", d.Tickets.UpdateStatus)
}

// registerAdmin wires the dashboard.  Every route requires the admin role;
// most additionally require a named permission, and a permission probe by
// an admin who lacks it terminates their privileges.  Admin grant/revoke is
// reserved for super-admins.
func registerAdmin(api *echo.Group, d Deps) {
	g := api.Group("/admin", d.Guard.RequireAuth(), d.Guard.RequireAdmin())

	g.GET("/stats", d.Admin.Stats)

	orders := d.Guard.RequirePermission(model.PermManageOrders)
	g.GET("/orders", d.Orders.ListAll, orders)
	g.PATCH("/orders/:id/status", d.Orders.UpdateStatus, orders)
	g.PUT("/pricing", d.Admin.UpdatePricing, orders)

	tickets := d.Guard.RequirePermission(model.PermManageTickets)
	g.GET("/tickets", d.Tickets.ListAll, tickets)
	g.PATCH("/tickets/:id/status", d.Tickets.AdminUpdateStatus, tickets)
	g.PATCH("/tickets/:id/priority", d.Tickets.UpdatePriority, tickets)
	g.PATCH("/tickets/:id/assign", d.Tickets.Assign, tickets)
	g.DELETE("/tickets/:id", d.Tickets.Delete, tickets)

	gallery := d.Guard.RequirePermission(model.PermManageGallery)
	g.GET("/gallery", d.Gallery.ListAll, gallery)
	g.POST("/gallery", d.Gallery.Create, gallery)
	g.PUT("/gallery/:id", d.Gallery.Update, gallery)
	g.DELETE("/gallery/:id", d.Gallery.Delete, gallery)

	users := d.Guard.RequirePermission(model.PermManageUsers)
	g.GET("/users", d.Admin.ListUsers, users)
	g.POST("/users/:id/ban", d.Admin.Ban, users)
	g.POST("/users/:id/unban", d.Admin.Unban, users)

	g.GET("/logs", d.Admin.Logs, d.Guard.RequirePermission(model.PermViewLogs))

	super := d.Guard.RequireSuperAdmin()
	g.POST("/users/:id/grant-admin", d.Admin.GrantAdmin, super)
	g.POST("/users/:id/revoke-admin", d.Admin.RevokeAdmin, super)
}
