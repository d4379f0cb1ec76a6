package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// MaxSeatsPerTrip bounds the bus size accepted by ScheduleTrip.
const MaxSeatsPerTrip = 100

// TripInput describes a trip to schedule.
type TripInput struct {
	Origin        string
	Destination   string
	BusNumber     string
	DepartureTime time.Time
	ArrivalTime   time.Time
	FareCents     int64
	SeatCount     int
}

func (in TripInput) validate() error {
	switch {
	case strings.TrimSpace(in.Origin) == "" || strings.TrimSpace(in.Destination) == "":
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "origin and destination are required")
	case in.DepartureTime.IsZero() || !in.ArrivalTime.After(in.DepartureTime):
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "arrival must be after departure")
	case in.FareCents <= 0:
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "fare must be positive")
	case in.SeatCount < 1 || in.SeatCount > MaxSeatsPerTrip:
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "seat count must be between 1 and %d", MaxSeatsPerTrip)
	}
	return nil
}

// seatTypeFor lays seats out in rows of four with windows on both sides.
func seatTypeFor(number int) string {
	switch (number - 1) % 4 {
	case 0, 3:
		return model.SeatTypeWindow
	default:
		return model.SeatTypeAisle
	}
}

// ScheduleTrip creates a trip together with all of its seats.
func (c *Coordinator) ScheduleTrip(ctx context.Context, in TripInput) (model.Trip, []model.Seat, error) {
	if err := in.validate(); err != nil {
		return model.Trip{}, nil, err
	}
	trip := model.Trip{
		Origin:        strings.TrimSpace(in.Origin),
		Destination:   strings.TrimSpace(in.Destination),
		BusNumber:     strings.TrimSpace(in.BusNumber),
		DepartureTime: in.DepartureTime.UTC(),
		ArrivalTime:   in.ArrivalTime.UTC(),
		FareCents:     in.FareCents,
		CreatedAt:     c.now(),
	}
	var seats []model.Seat
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateTrip(ctx, &trip); err != nil {
			return fmt.Errorf("create trip: %w", err)
		}
		seats = lo.Times(in.SeatCount, func(i int) model.Seat {
			return model.Seat{TripID: trip.ID, SeatNumber: uint32(i + 1), SeatType: seatTypeFor(i + 1)}
		})
		if err := tx.CreateSeats(ctx, seats); err != nil {
			return fmt.Errorf("create seats: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Trip{}, nil, err
	}
	c.logger(ctx).WithFields(logrus.Fields{"trip_id": trip.ID, "seats": len(seats)}).Info("Trip scheduled")
	return trip, seats, nil
}

// GetTrip returns a trip by id.
func (c *Coordinator) GetTrip(ctx context.Context, tripID uint64) (model.Trip, error) {
	var trip model.Trip
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		trip, err = tx.GetTrip(ctx, tripID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrTripNotFound, "trip %d not found", tripID), "get trip")
		}
		return nil
	})
	return trip, err
}

// TripSeats returns every seat of a trip with its status at now.  A seat
// is BOOKED when its flag is set, HELD when an active hold references it,
// and FREE otherwise.
func (c *Coordinator) TripSeats(ctx context.Context, tripID uint64) ([]model.SeatAvailability, error) {
	now := c.now()
	var out []model.SeatAvailability
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetTrip(ctx, tripID); err != nil {
			return lookupErr(err, fail(apperr.ErrTripNotFound, "trip %d not found", tripID), "get trip")
		}
		seats, err := tx.ListSeatsByTrip(ctx, tripID)
		if err != nil {
			return fmt.Errorf("list seats: %w", err)
		}
		holds, err := tx.ListActiveHoldsByTrip(ctx, tripID, now)
		if err != nil {
			return fmt.Errorf("list holds: %w", err)
		}
		held := lo.SliceToMap(holds, func(h model.SeatHold) (uint64, struct{}) { return h.SeatID, struct{}{} })
		out = lo.Map(seats, func(s model.Seat, _ int) model.SeatAvailability {
			status := model.SeatFree
			if s.Booked {
				status = model.SeatBooked
			} else if _, ok := held[s.ID]; ok {
				status = model.SeatHeld
			}
			return model.SeatAvailability{Seat: s, Status: status}
		})
		return nil
	})
	return out, err
}

// GetBooking returns a booking and its payment.  Only the owner may read it.
func (c *Coordinator) GetBooking(ctx context.Context, bookingID, userID uint64) (model.BookingDetail, error) {
	var out model.BookingDetail
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrBookingNotFound, "booking %d not found", bookingID), "get booking")
		}
		if b.UserID != userID {
			return fail(apperr.ErrBookingForbidden, "booking %d belongs to another user", bookingID)
		}
		out.Booking = b
		p, err := tx.GetPaymentByBooking(ctx, bookingID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return fmt.Errorf("get payment: %w", err)
		default:
			out.Payment = &p
		}
		return nil
	})
	return out, err
}

// ListUserBookings returns the bookings of a user, newest first.
func (c *Coordinator) ListUserBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	var out []model.Booking
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListBookingsByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if out == nil {
		out = []model.Booking{}
	}
	return out, nil
}
