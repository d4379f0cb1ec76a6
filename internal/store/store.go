// Package store defines the persistence contract of the booking core.
// All reads and writes happen inside a transaction obtained from
// Store.WithTx.  Methods prefixed with Lock take exclusive row locks that
// are held until the transaction ends; callers lock seats in ascending id
// order so concurrent multi-seat operations cannot deadlock.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("duplicate")
)

// Store opens transactions.  fn runs inside a single transaction which is
// committed when fn returns nil and rolled back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// BookingFilter selects booking ids for the sweeper.  Zero fields do not
// constrain the result.
type BookingFilter struct {
	Statuses       []model.BookingStatus
	CreatedBefore  time.Time // booking_date < CreatedBefore
	DepartedBefore time.Time // trip.departure_time < DepartedBefore
	AfterID        uint64    // id > AfterID
	Limit          int
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// Users
	UserExists(ctx context.Context, id uint64) (bool, error)

	// Trips and seats
	CreateTrip(ctx context.Context, t *model.Trip) error
	GetTrip(ctx context.Context, id uint64) (model.Trip, error)
	CreateSeats(ctx context.Context, seats []model.Seat) error
	ListSeatsByTrip(ctx context.Context, tripID uint64) ([]model.Seat, error)
	// LockSeats locks the given seats in ascending id order and returns the
	// rows found; missing ids are simply absent from the result.
	LockSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error)
	SetSeatsBooked(ctx context.Context, seatIDs []uint64, booked bool) error

	// Holds
	// LockActiveHolds returns holds on the given seats that are active at
	// now, reading the latest committed rows under lock.
	LockActiveHolds(ctx context.Context, seatIDs []uint64, now time.Time) ([]model.SeatHold, error)
	ListActiveHoldsByTrip(ctx context.Context, tripID uint64, now time.Time) ([]model.SeatHold, error)
	CreateHolds(ctx context.Context, holds []model.SeatHold) error
	// ListHoldsBySession reads the holds of a session without locking.
	ListHoldsBySession(ctx context.Context, sessionID string) ([]model.SeatHold, error)
	LockHoldsBySession(ctx context.Context, sessionID string) ([]model.SeatHold, error)
	DeleteHoldsBySession(ctx context.Context, sessionID string) (int64, error)
	// DeleteExpiredHolds removes holds with hold_until <= now.
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error)

	// Bookings
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	LockBooking(ctx context.Context, id uint64) (model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uint64, status model.BookingStatus, now time.Time) error
	ListBookingIDs(ctx context.Context, f BookingFilter) ([]uint64, error)

	// Payments
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPaymentByBooking(ctx context.Context, bookingID uint64) (model.Payment, error)
	LockPayment(ctx context.Context, id uint64) (model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error
	ListPendingRefundIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error)
}
