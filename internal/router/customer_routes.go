package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/middleware"
)

// RegisterCustomer registers the booking and payment endpoints.  All of
// them require a valid JWT; hold and confirm are also rate limited per
// caller.
func RegisterCustomer(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)

	g.POST("/bookings/hold", d.Bookings.HoldSeats, limit)
	g.DELETE("/bookings/hold/:sessionId", d.Bookings.ReleaseHold)
	g.POST("/bookings/confirm", d.Bookings.Confirm, limit)
	g.GET("/bookings/me", d.Bookings.ListMine)
	g.GET("/bookings/:id", d.Bookings.Get)
	g.DELETE("/bookings/:id", d.Bookings.Cancel)

	g.POST("/payments", d.Payments.Process)
	g.POST("/payments/:id/retry", d.Payments.Retry)
	g.GET("/payments/booking/:bookingId", d.Payments.ByBooking)
}
