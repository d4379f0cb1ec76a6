package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/metrics"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/queue"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// ConfirmBooking promotes the holds of a session into a paid booking.  In
// one transaction every held seat is marked booked, a CONFIRMED booking
// and a SUCCESS payment are created, and the session's holds are deleted.
// If any hold of the session has expired the whole session is rejected
// with HOLD_EXPIRED and nothing changes.
func (c *Coordinator) ConfirmBooking(ctx context.Context, sessionID string, userID uint64, method model.PaymentMethod) (model.BookingDetail, error) {
	return c.confirm(ctx, sessionID, userID, method, model.BookingConfirmed, model.PaymentSuccess)
}

// ConfirmBookingDeferred is ConfirmBooking for checkouts that settle
// later: the booking is created PENDING_PAYMENT with a PENDING payment.
// The seats are booked immediately; the unpaid sweep releases them if no
// payment succeeds within the unpaid timeout.
func (c *Coordinator) ConfirmBookingDeferred(ctx context.Context, sessionID string, userID uint64, method model.PaymentMethod) (model.BookingDetail, error) {
	return c.confirm(ctx, sessionID, userID, method, model.BookingPendingPayment, model.PaymentPending)
}

func (c *Coordinator) confirm(ctx context.Context, sessionID string, userID uint64, method model.PaymentMethod,
	bookingStatus model.BookingStatus, paymentStatus model.PaymentStatus) (model.BookingDetail, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.BookingDetail{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "session id is required")
	}
	if !method.Valid() {
		return model.BookingDetail{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "unsupported payment method %q", method)
	}

	now := c.now()
	var (
		out  model.BookingDetail
		trip model.Trip
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// Learn which seats the session covers, then lock them before
		// locking the hold rows so every writer takes seat locks first.
		peek, err := tx.ListHoldsBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list holds: %w", err)
		}
		if len(peek) == 0 {
			return fail(apperr.ErrSessionNotFound, "no holds for session %s", sessionID)
		}
		if _, err := tx.LockSeats(ctx, seatIDsOf(peek)); err != nil {
			return fmt.Errorf("lock seats: %w", err)
		}
		holds, err := tx.LockHoldsBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock holds: %w", err)
		}
		if len(holds) == 0 {
			return fail(apperr.ErrSessionNotFound, "no holds for session %s", sessionID)
		}
		for _, h := range holds {
			if h.UserID != userID {
				return fail(apperr.ErrSessionForbidden, "session %s belongs to another user", sessionID)
			}
		}
		for _, h := range holds {
			if !h.ActiveAt(now) {
				return fail(apperr.ErrHoldExpired, "hold on seat %d expired at %s", h.SeatID, h.HoldUntil.Format(time.RFC3339))
			}
		}

		seatIDs := seatIDsOf(holds)
		// LockSeats is re-entrant within a transaction; this re-read returns
		// the current rows for exactly the seats still held.
		seats, err := tx.LockSeats(ctx, seatIDs)
		if err != nil {
			return fmt.Errorf("lock seats: %w", err)
		}
		byID := lo.KeyBy(seats, func(s model.Seat) uint64 { return s.ID })
		tripID := holds[0].TripID
		for _, id := range seatIDs {
			s, ok := byID[id]
			if !ok || s.TripID != tripID {
				return fail(apperr.ErrSeatNotFound, "seat %d not found on trip %d", id, tripID)
			}
			if s.Booked {
				return fail(apperr.ErrSeatUnavailable, "seat %d is already booked", s.SeatNumber)
			}
		}

		trip, err = tx.GetTrip(ctx, tripID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrTripNotFound, "trip %d not found", tripID), "get trip")
		}

		if err := tx.SetSeatsBooked(ctx, seatIDs, true); err != nil {
			return fmt.Errorf("book seats: %w", err)
		}

		booking := model.Booking{
			UserID:           userID,
			TripID:           tripID,
			SeatIDs:          seatIDs,
			TotalAmountCents: int64(len(seatIDs)) * trip.FareCents,
			Status:           bookingStatus,
			BookingDate:      now,
			UpdatedAt:        now,
		}
		if err := tx.CreateBooking(ctx, &booking); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		payment := model.Payment{
			BookingID:       booking.ID,
			AmountCents:     booking.TotalAmountCents,
			Method:          method,
			Status:          paymentStatus,
			GatewayResponse: paymentMessage(paymentStatus),
			PaymentDate:     now,
			UpdatedAt:       now,
		}
		if err := tx.CreatePayment(ctx, &payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		if _, err := tx.DeleteHoldsBySession(ctx, sessionID); err != nil {
			return fmt.Errorf("delete holds: %w", err)
		}

		out = model.BookingDetail{Booking: booking, Payment: &payment}
		return nil
	})
	if err != nil {
		return model.BookingDetail{}, err
	}

	metrics.BookingTransitions.WithLabelValues(string(bookingStatus)).Inc()
	c.logger(ctx).WithFields(logrus.Fields{
		"booking_id": out.ID,
		"session_id": sessionID,
		"user_id":    userID,
		"status":     out.Status,
		"total":      out.TotalAmountCents,
	}).Info("Booking created")

	c.publishConfirmed(ctx, out, trip, method)
	return out, nil
}

func paymentMessage(s model.PaymentStatus) string {
	if s == model.PaymentSuccess {
		return "settled at confirmation"
	}
	return "awaiting payment"
}

func seatIDsOf(holds []model.SeatHold) []uint64 {
	return normalizeSeatIDs(lo.Map(holds, func(h model.SeatHold, _ int) uint64 { return h.SeatID }))
}

func (c *Coordinator) publishConfirmed(ctx context.Context, b model.BookingDetail, trip model.Trip, method model.PaymentMethod) {
	ev := queue.BookingConfirmedEvent{
		BookingID:        b.ID,
		UserID:           b.UserID,
		TripID:           b.TripID,
		Origin:           trip.Origin,
		Destination:      trip.Destination,
		DepartureTime:    trip.DepartureTime,
		SeatIDs:          b.SeatIDs,
		TotalAmountCents: b.TotalAmountCents,
		Status:           string(b.Status),
		PaymentMethod:    string(method),
		ConfirmedAt:      b.BookingDate,
	}
	if err := c.publisher.PublishBookingConfirmed(ctx, ev); err != nil {
		c.logger(ctx).WithError(err).WithField("booking_id", b.ID).Warn("Could not publish booking.confirmed")
	}
}
