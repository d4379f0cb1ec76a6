// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/config"
	"github.com/iliyamo/bus-ticket-reservation/internal/handler"
	"github.com/iliyamo/bus-ticket-reservation/internal/middleware"
)

// Deps carries everything the routes need.  Redis may be nil, which
// disables rate limiting and the trip cache.
type Deps struct {
	Bookings  *handler.BookingHandler
	Trips     *handler.TripHandler
	Payments  *handler.PaymentHandler
	Admin     *handler.AdminHandler
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Logger    *logrus.Entry
}

// New builds an echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.RequestLogger(d.Logger))

	RegisterRoutes(e, d)
	RegisterCustomer(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated routes: health, metrics
// and the public trip views.  Trip details go through the Redis response
// cache; seat availability never does.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/v1/trips/:id", d.Trips.Get, middleware.NewRedisCache(d.Cache, d.Redis))
	e.GET("/v1/trips/:id/seats", d.Trips.Seats)
}
