package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trip := &model.Trip{Origin: "A", Destination: "B", FareCents: 100}
		require.NoError(t, tx.CreateTrip(ctx, trip))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetTrip(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	var tripID uint64

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trip := &model.Trip{Origin: "A", Destination: "B", FareCents: 100}
		if err := tx.CreateTrip(ctx, trip); err != nil {
			return err
		}
		tripID = trip.ID
		return tx.CreateSeats(ctx, []model.Seat{{TripID: trip.ID, SeatNumber: 2}, {TripID: trip.ID, SeatNumber: 1}})
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		seats, err := tx.ListSeatsByTrip(ctx, tripID)
		require.NoError(t, err)
		assert.Len(t, seats, 2)
		assert.Less(t, seats[0].ID, seats[1].ID)
		return nil
	}))
}

func TestHoldExpiryBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateHolds(ctx, []model.SeatHold{
			{SeatID: 1, TripID: 1, SessionID: "s1", HoldUntil: now.Add(-time.Nanosecond)},
			{SeatID: 2, TripID: 1, SessionID: "s2", HoldUntil: now},
		})
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		active, err := tx.LockActiveHolds(ctx, []uint64{1, 2}, now)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, uint64(2), active[0].SeatID)

		n, err := tx.DeleteExpiredHolds(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	}))
}

func TestListBookingIDsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		past := &model.Trip{DepartureTime: now.Add(-time.Hour)}
		future := &model.Trip{DepartureTime: now.Add(time.Hour)}
		require.NoError(t, tx.CreateTrip(ctx, past))
		require.NoError(t, tx.CreateTrip(ctx, future))
		require.NoError(t, tx.CreateBooking(ctx, &model.Booking{TripID: past.ID, Status: model.BookingConfirmed, BookingDate: now}))
		require.NoError(t, tx.CreateBooking(ctx, &model.Booking{TripID: future.ID, Status: model.BookingConfirmed, BookingDate: now}))
		require.NoError(t, tx.CreateBooking(ctx, &model.Booking{TripID: past.ID, Status: model.BookingCancelled, BookingDate: now}))

		ids, err := tx.ListBookingIDs(ctx, store.BookingFilter{
			Statuses:       []model.BookingStatus{model.BookingConfirmed},
			DepartedBefore: now,
		})
		require.NoError(t, err)
		assert.Len(t, ids, 1)

		all, err := tx.ListBookingIDs(ctx, store.BookingFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		rest, err := tx.ListBookingIDs(ctx, store.BookingFilter{AfterID: all[0], Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, all[1:2], rest)
		return nil
	}))
}

func TestCreatePaymentUniquePerBooking(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.CreatePayment(ctx, &model.Payment{BookingID: 9}))
		return tx.CreatePayment(ctx, &model.Payment{BookingID: 9})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}
