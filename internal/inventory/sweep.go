package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/metrics"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// Candidates names a class of bookings the sweeper advances.
type Candidates int

const (
	// UnpaidBookings are PENDING_PAYMENT or PAYMENT_FAILED bookings older
	// than the unpaid timeout.
	UnpaidBookings Candidates = iota
	// DepartedBookings are CONFIRMED bookings whose trip has left.
	DepartedBookings
	// ArchivableBookings are COMPLETED bookings older than the retention window.
	ArchivableBookings
)

// sweepBatch bounds how many ids one candidate page holds.
const sweepBatch = 500

// ExpireHolds deletes every hold whose hold_until is before now.
func (c *Coordinator) ExpireHolds(ctx context.Context) (int64, error) {
	now := c.now()
	var n int64
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.DeleteExpiredHolds(ctx, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire holds: %w", err)
	}
	return n, nil
}

// FindSweepCandidates lists, ascending, the ids above afterID of bookings
// in the given class at now.  Callers page by passing the last id they
// saw.  The list is only a hint: each transition re-checks the booking
// under lock.
func (c *Coordinator) FindSweepCandidates(ctx context.Context, which Candidates, afterID uint64) ([]uint64, error) {
	now := c.now()
	var f store.BookingFilter
	switch which {
	case UnpaidBookings:
		f = store.BookingFilter{
			Statuses:      []model.BookingStatus{model.BookingPendingPayment, model.BookingPaymentFailed},
			CreatedBefore: now.Add(-c.unpaidTimeout),
		}
	case DepartedBookings:
		f = store.BookingFilter{
			Statuses:       []model.BookingStatus{model.BookingConfirmed},
			DepartedBefore: now,
		}
	case ArchivableBookings:
		f = store.BookingFilter{
			Statuses:      []model.BookingStatus{model.BookingCompleted},
			CreatedBefore: now.Add(-c.archiveAfter),
		}
	default:
		return nil, fmt.Errorf("unknown candidate class %d", which)
	}
	f.AfterID = afterID
	f.Limit = sweepBatch

	var ids []uint64
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.ListBookingIDs(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find sweep candidates: %w", err)
	}
	return ids, nil
}

// CancelUnpaid cancels one booking whose payment window elapsed and
// releases its seats.  It reports false, without error, when the booking
// no longer qualifies (paid, cancelled or too recent).
func (c *Coordinator) CancelUnpaid(ctx context.Context, bookingID uint64) (bool, error) {
	now := c.now()
	var (
		out  model.BookingDetail
		done bool
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrBookingNotFound, "booking %d not found", bookingID), "get booking")
		}
		if b.Status != model.BookingPendingPayment && b.Status != model.BookingPaymentFailed {
			return nil
		}
		if !b.BookingDate.Before(now.Add(-c.unpaidTimeout)) {
			return nil
		}
		out, err = c.cancelLocked(ctx, tx, b, now, ReasonUnpaid)
		if err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil || !done {
		return false, err
	}
	metrics.BookingTransitions.WithLabelValues(string(model.BookingCancelled)).Inc()
	c.logger(ctx).WithFields(logrus.Fields{"booking_id": bookingID, "user_id": out.UserID}).Info("Unpaid booking cancelled")
	c.publishCancelled(ctx, out, now, ReasonUnpaid)
	return true, nil
}

// CompleteDeparted marks a CONFIRMED booking COMPLETED once its trip has
// departed.
func (c *Coordinator) CompleteDeparted(ctx context.Context, bookingID uint64) (bool, error) {
	now := c.now()
	return c.advance(ctx, bookingID, model.BookingConfirmed, model.BookingCompleted,
		func(ctx context.Context, tx store.Tx, b model.Booking) (bool, error) {
			trip, err := tx.GetTrip(ctx, b.TripID)
			if err != nil {
				return false, lookupErr(err, fail(apperr.ErrTripNotFound, "trip %d not found", b.TripID), "get trip")
			}
			return trip.DepartureTime.Before(now), nil
		}, now)
}

// Archive moves a COMPLETED booking older than the retention window to
// ARCHIVED.  Rows are never deleted.
func (c *Coordinator) Archive(ctx context.Context, bookingID uint64) (bool, error) {
	now := c.now()
	return c.advance(ctx, bookingID, model.BookingCompleted, model.BookingArchived,
		func(_ context.Context, _ store.Tx, b model.Booking) (bool, error) {
			return b.BookingDate.Before(now.Add(-c.archiveAfter)), nil
		}, now)
}

// advance moves a booking from one status to the next when it is still in
// from and eligible holds.  Seats are not touched.
func (c *Coordinator) advance(ctx context.Context, bookingID uint64, from, to model.BookingStatus,
	eligible func(context.Context, store.Tx, model.Booking) (bool, error), now time.Time) (bool, error) {
	var done bool
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrBookingNotFound, "booking %d not found", bookingID), "get booking")
		}
		if b.Status != from || !b.Status.CanTransitionTo(to) {
			return nil
		}
		ok, err := eligible(ctx, tx, b)
		if err != nil || !ok {
			return err
		}
		if err := tx.UpdateBookingStatus(ctx, bookingID, to, now); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		done = true
		return nil
	})
	if err != nil || !done {
		return false, err
	}
	metrics.BookingTransitions.WithLabelValues(string(to)).Inc()
	c.logger(ctx).WithFields(logrus.Fields{"booking_id": bookingID, "status": to}).Debug("Booking advanced")
	return true, nil
}
