package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/metrics"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/queue"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// Cancellation reasons carried on events and payment responses.
const (
	ReasonUserCancelled = "cancelled by customer"
	ReasonUnpaid        = "payment window elapsed"
)

// CancelBooking cancels a booking on behalf of its owner.  Checks run in
// order: existence, ownership, already cancelled, already completed, and
// the departure window (rejected iff now > departure - window).  On
// success the seats are released, the booking becomes CANCELLED and a
// settled payment is marked REFUNDED for the gateway to execute later.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, userID uint64) (model.BookingDetail, error) {
	now := c.now()
	var out model.BookingDetail

	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrBookingNotFound, "booking %d not found", bookingID), "get booking")
		}
		if b.UserID != userID {
			return fail(apperr.ErrBookingForbidden, "booking %d belongs to another user", bookingID)
		}
		switch b.Status {
		case model.BookingCancelled:
			return fail(apperr.ErrAlreadyCancelled, "booking %d is already cancelled", bookingID)
		case model.BookingCompleted, model.BookingArchived:
			return fail(apperr.ErrAlreadyCompleted, "booking %d is already completed", bookingID)
		}

		trip, err := tx.GetTrip(ctx, b.TripID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrTripNotFound, "trip %d not found", b.TripID), "get trip")
		}
		if now.After(trip.DepartureTime.Add(-c.cancellationWindow)) {
			return fail(apperr.ErrTooCloseToDeparture,
				"bookings cannot be cancelled less than %s before departure", c.cancellationWindow)
		}

		out, err = c.cancelLocked(ctx, tx, b, now, ReasonUserCancelled)
		return err
	})
	if err != nil {
		return model.BookingDetail{}, err
	}

	metrics.BookingTransitions.WithLabelValues(string(model.BookingCancelled)).Inc()
	c.logger(ctx).WithFields(logrus.Fields{
		"booking_id": bookingID,
		"user_id":    userID,
	}).Info("Booking cancelled")
	c.publishCancelled(ctx, out, now, ReasonUserCancelled)
	return out, nil
}

// cancelLocked releases the seats of a locked booking, marks it CANCELLED
// and compensates its payment: a settled payment becomes REFUNDED, one
// that never settled becomes FAILED.
func (c *Coordinator) cancelLocked(ctx context.Context, tx store.Tx, b model.Booking, now time.Time, reason string) (model.BookingDetail, error) {
	if !b.Status.CanTransitionTo(model.BookingCancelled) {
		return model.BookingDetail{}, apperr.New(apperr.KindInvalidState, apperr.CodeInvalidTransition,
			"booking %d cannot be cancelled from %s", b.ID, b.Status)
	}

	seatIDs := normalizeSeatIDs(b.SeatIDs)
	if _, err := tx.LockSeats(ctx, seatIDs); err != nil {
		return model.BookingDetail{}, fmt.Errorf("lock seats: %w", err)
	}
	if err := tx.SetSeatsBooked(ctx, seatIDs, false); err != nil {
		return model.BookingDetail{}, fmt.Errorf("release seats: %w", err)
	}
	if err := tx.UpdateBookingStatus(ctx, b.ID, model.BookingCancelled, now); err != nil {
		return model.BookingDetail{}, fmt.Errorf("update booking: %w", err)
	}
	b.Status = model.BookingCancelled
	b.UpdatedAt = now
	out := model.BookingDetail{Booking: b}

	p, err := tx.GetPaymentByBooking(ctx, b.ID)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return model.BookingDetail{}, fmt.Errorf("get payment: %w", err)
	}
	p, err = tx.LockPayment(ctx, p.ID)
	if err != nil {
		return model.BookingDetail{}, fmt.Errorf("lock payment: %w", err)
	}
	switch p.Status {
	case model.PaymentSuccess:
		p.Status = model.PaymentRefunded
		p.GatewayResponse = "refund pending: " + reason
	case model.PaymentPending, model.PaymentFailed:
		// Nothing was charged, so the refund is closed right away.
		ref := model.RefundNotCharged
		p.Status = model.PaymentRefunded
		p.GatewayResponse = "nothing to refund: cancelled before settlement: " + reason
		p.RefundReference = &ref
		p.RefundDate = &now
	}
	p.UpdatedAt = now
	if err := tx.UpdatePayment(ctx, &p); err != nil {
		return model.BookingDetail{}, fmt.Errorf("update payment: %w", err)
	}
	out.Payment = &p
	return out, nil
}

func (c *Coordinator) publishCancelled(ctx context.Context, b model.BookingDetail, now time.Time, reason string) {
	ev := queue.BookingCancelledEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		TripID:      b.TripID,
		SeatIDs:     b.SeatIDs,
		Reason:      reason,
		CancelledAt: now,
	}
	if b.Payment != nil {
		ev.PaymentID = b.Payment.ID
		ev.PaymentStatus = string(b.Payment.Status)
	}
	if err := c.publisher.PublishBookingCancelled(ctx, ev); err != nil {
		c.logger(ctx).WithError(err).WithField("booking_id", b.ID).Warn("Could not publish booking.cancelled")
	}
}
