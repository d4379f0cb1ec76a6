package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

// BookingHandler exposes the customer checkout flow: hold seats, release
// or confirm the hold, then read or cancel the resulting booking.  All
// routes sit behind JWTAuth.
type BookingHandler struct {
	coord *inventory.Coordinator
}

// NewBookingHandler panics on a nil coordinator.
func NewBookingHandler(coord *inventory.Coordinator) *BookingHandler {
	if coord == nil {
		panic("nil coordinator passed to NewBookingHandler")
	}
	return &BookingHandler{coord: coord}
}

type holdRequest struct {
	TripID  uint64   `json:"tripId" validate:"required"`
	SeatIDs []uint64 `json:"seatIds" validate:"required,min=1,dive,required"`
}

type confirmRequest struct {
	SessionID     string              `json:"sessionId" validate:"required"`
	PaymentMethod model.PaymentMethod `json:"paymentMethod" validate:"required,oneof=CARD UPI NETBANKING WALLET"`
	PayLater      bool                `json:"payLater"`
}

// HoldSeats handles POST /v1/bookings/hold.  Either every requested seat
// is held under one new session or none is; a refusal is 400 and its code
// names the conflict.
func (h *BookingHandler) HoldSeats(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req holdRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	session, err := h.coord.HoldSeats(c.Request().Context(), req.TripID, userID, req.SeatIDs)
	if err != nil {
		return writeRejection(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// ReleaseHold handles DELETE /v1/bookings/hold/:sessionId.  Releasing an
// unknown or already released session succeeds with released=0.
func (h *BookingHandler) ReleaseHold(c echo.Context) error {
	if _, ok := userFrom(c); !ok {
		return unauthorized(c)
	}
	n, err := h.coord.ReleaseSeatHold(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}

// Confirm handles POST /v1/bookings/confirm.  With payLater the booking is
// created PENDING_PAYMENT and must be paid through /v1/payments.
func (h *BookingHandler) Confirm(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req confirmRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	confirm := h.coord.ConfirmBooking
	if req.PayLater {
		confirm = h.coord.ConfirmBookingDeferred
	}
	booking, err := confirm(c.Request().Context(), req.SessionID, userID, req.PaymentMethod)
	if err != nil {
		return writeRejection(c, err)
	}
	return c.JSON(http.StatusCreated, booking)
}

// Cancel handles DELETE /v1/bookings/:id.  Like hold and confirm, every
// refusal is 400.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	booking, err := h.coord.CancelBooking(c.Request().Context(), id, userID)
	if err != nil {
		return writeRejection(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "booking cancelled", "booking": booking})
}

// ListMine handles GET /v1/bookings/me.
func (h *BookingHandler) ListMine(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	items, err := h.coord.ListUserBookings(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/bookings/:id.  Other users' bookings are 403.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	booking, err := h.coord.GetBooking(c.Request().Context(), id, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}
