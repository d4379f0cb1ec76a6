package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/payment"
	"github.com/iliyamo/bus-ticket-reservation/internal/sweeper"
)

// SweepRunner runs one maintenance job on demand.
type SweepRunner interface {
	RunNow(ctx context.Context, job string) (sweeper.Result, error)
}

// AdminHandler groups the ADMIN-only operations: scheduling trips,
// settling refunds and triggering sweeps.
type AdminHandler struct {
	coord    *inventory.Coordinator
	payments *payment.Service
	sweeps   SweepRunner
}

// NewAdminHandler panics on nil dependencies.
func NewAdminHandler(coord *inventory.Coordinator, payments *payment.Service, sweeps SweepRunner) *AdminHandler {
	if coord == nil || payments == nil || sweeps == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{coord: coord, payments: payments, sweeps: sweeps}
}

type tripRequest struct {
	Origin        string    `json:"origin" validate:"required"`
	Destination   string    `json:"destination" validate:"required"`
	BusNumber     string    `json:"busNumber" validate:"required"`
	DepartureTime time.Time `json:"departureTime" validate:"required"`
	ArrivalTime   time.Time `json:"arrivalTime" validate:"required,gtfield=DepartureTime"`
	FareCents     int64     `json:"fareCents" validate:"gt=0"`
	SeatCount     int       `json:"seatCount" validate:"required,min=1,max=100"`
}

type tripResponse struct {
	model.Trip
	Seats []model.Seat `json:"seats"`
}

// CreateTrip handles POST /v1/admin/trips.  The trip's seats are created
// in the same transaction.
func (h *AdminHandler) CreateTrip(c echo.Context) error {
	var req tripRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	trip, seats, err := h.coord.ScheduleTrip(c.Request().Context(), inventory.TripInput{
		Origin:        req.Origin,
		Destination:   req.Destination,
		BusNumber:     req.BusNumber,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		FareCents:     req.FareCents,
		SeatCount:     req.SeatCount,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, tripResponse{Trip: trip, Seats: seats})
}

// SettleRefund handles POST /v1/admin/payments/:id/settle-refund.
func (h *AdminHandler) SettleRefund(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	p, err := h.payments.SettleRefund(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// RunSweep handles POST /v1/admin/sweeps/:job.
func (h *AdminHandler) RunSweep(c echo.Context) error {
	res, err := h.sweeps.RunNow(c.Request().Context(), c.Param("job"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
