package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
)

// TripHandler serves the public trip endpoints.  No authentication.
type TripHandler struct {
	coord *inventory.Coordinator
}

func NewTripHandler(coord *inventory.Coordinator) *TripHandler {
	if coord == nil {
		panic("nil coordinator passed to NewTripHandler")
	}
	return &TripHandler{coord: coord}
}

// Get handles GET /v1/trips/:id.
func (h *TripHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	trip, err := h.coord.GetTrip(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// Seats handles GET /v1/trips/:id/seats.  Every seat is reported as FREE,
// HELD or BOOKED at the time of the request.
func (h *TripHandler) Seats(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	seats, err := h.coord.TripSeats(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tripId": id, "items": seats})
}
