package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/payment"
)

// PaymentHandler charges unpaid bookings through the payment service.
type PaymentHandler struct {
	payments *payment.Service
}

func NewPaymentHandler(payments *payment.Service) *PaymentHandler {
	if payments == nil {
		panic("nil payment service passed to NewPaymentHandler")
	}
	return &PaymentHandler{payments: payments}
}

type paymentRequest struct {
	BookingID uint64              `json:"bookingId" validate:"required"`
	Method    model.PaymentMethod `json:"method" validate:"required,oneof=CARD UPI NETBANKING WALLET"`
}

// Process handles POST /v1/payments.  A declined charge is not an error:
// the payment comes back FAILED and the booking PAYMENT_FAILED.
func (h *PaymentHandler) Process(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req paymentRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	p, err := h.payments.ProcessPayment(c.Request().Context(), req.BookingID, userID, req.Method)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Retry handles POST /v1/payments/:id/retry for FAILED payments.
func (h *PaymentHandler) Retry(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	p, err := h.payments.RetryPayment(c.Request().Context(), id, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ByBooking handles GET /v1/payments/booking/:bookingId.
func (h *PaymentHandler) ByBooking(c echo.Context) error {
	userID, ok := userFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseID(c, "bookingId")
	if err != nil {
		return writeError(c, err)
	}
	p, err := h.payments.GetPaymentByBooking(c.Request().Context(), id, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
