package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/middleware"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/trips", d.Admin.CreateTrip)
	g.POST("/payments/:id/settle-refund", d.Admin.SettleRefund)
	g.POST("/sweeps/:job", d.Admin.RunSweep)
}
