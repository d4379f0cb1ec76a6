package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bus-ticket-reservation/internal/database"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

const maxTxAttempts = 3

// Store implements store.Store on MySQL.  Every transaction runs at
// REPEATABLE READ; contended rows are read with SELECT ... FOR UPDATE.
type Store struct {
	db *sqlx.DB

	Users    *UserRepo
	Trips    *TripRepo
	Seats    *SeatRepo
	Holds    *SeatHoldRepo
	Bookings *BookingRepo
	Payments *PaymentRepo
}

var _ store.Store = (*Store)(nil)

// NewStore wires the table repositories around db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:       db,
		Users:    NewUserRepo(db),
		Trips:    NewTripRepo(db),
		Seats:    NewSeatRepo(db),
		Holds:    NewSeatHoldRepo(db),
		Bookings: NewBookingRepo(db),
		Payments: NewPaymentRepo(db),
	}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithTx runs fn in a REPEATABLE READ transaction.  A transaction chosen
// as a deadlock victim is retried from scratch a bounded number of times.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = database.InTx(ctx, s.db, sql.LevelRepeatableRead, func(ctx context.Context, tx *sqlx.Tx) error {
			return fn(ctx, &sqlTx{s: s, tx: tx})
		})
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// sqlTx binds the repositories to one transaction.
type sqlTx struct {
	s  *Store
	tx *sqlx.Tx
}

func (t *sqlTx) UserExists(ctx context.Context, id uint64) (bool, error) {
	return t.s.Users.ExistsTx(ctx, t.tx, id)
}

func (t *sqlTx) CreateTrip(ctx context.Context, trip *model.Trip) error {
	return t.s.Trips.CreateTx(ctx, t.tx, trip)
}

func (t *sqlTx) GetTrip(ctx context.Context, id uint64) (model.Trip, error) {
	return t.s.Trips.GetTx(ctx, t.tx, id)
}

func (t *sqlTx) CreateSeats(ctx context.Context, seats []model.Seat) error {
	return t.s.Seats.CreateBulkTx(ctx, t.tx, seats)
}

func (t *sqlTx) ListSeatsByTrip(ctx context.Context, tripID uint64) ([]model.Seat, error) {
	return t.s.Seats.ListByTripTx(ctx, t.tx, tripID)
}

func (t *sqlTx) LockSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	return t.s.Seats.LockTx(ctx, t.tx, seatIDs)
}

func (t *sqlTx) SetSeatsBooked(ctx context.Context, seatIDs []uint64, booked bool) error {
	return t.s.Seats.SetBookedTx(ctx, t.tx, seatIDs, booked)
}

func (t *sqlTx) LockActiveHolds(ctx context.Context, seatIDs []uint64, now time.Time) ([]model.SeatHold, error) {
	return t.s.Holds.LockActiveTx(ctx, t.tx, seatIDs, now)
}

func (t *sqlTx) ListActiveHoldsByTrip(ctx context.Context, tripID uint64, now time.Time) ([]model.SeatHold, error) {
	return t.s.Holds.ActiveByTripTx(ctx, t.tx, tripID, now)
}

func (t *sqlTx) CreateHolds(ctx context.Context, holds []model.SeatHold) error {
	return t.s.Holds.CreateMultipleTx(ctx, t.tx, holds)
}

func (t *sqlTx) ListHoldsBySession(ctx context.Context, sessionID string) ([]model.SeatHold, error) {
	return t.s.Holds.ListBySessionTx(ctx, t.tx, sessionID)
}

func (t *sqlTx) LockHoldsBySession(ctx context.Context, sessionID string) ([]model.SeatHold, error) {
	return t.s.Holds.LockBySessionTx(ctx, t.tx, sessionID)
}

func (t *sqlTx) DeleteHoldsBySession(ctx context.Context, sessionID string) (int64, error) {
	return t.s.Holds.DeleteBySessionTx(ctx, t.tx, sessionID)
}

func (t *sqlTx) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	return t.s.Holds.DeleteExpiredTx(ctx, t.tx, now)
}

func (t *sqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	return t.s.Bookings.CreateTx(ctx, t.tx, b)
}

func (t *sqlTx) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.s.Bookings.GetTx(ctx, t.tx, id)
}

func (t *sqlTx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.s.Bookings.LockTx(ctx, t.tx, id)
}

func (t *sqlTx) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return t.s.Bookings.ListByUserTx(ctx, t.tx, userID)
}

func (t *sqlTx) UpdateBookingStatus(ctx context.Context, id uint64, status model.BookingStatus, now time.Time) error {
	return t.s.Bookings.UpdateStatusTx(ctx, t.tx, id, status, now)
}

func (t *sqlTx) ListBookingIDs(ctx context.Context, f store.BookingFilter) ([]uint64, error) {
	return t.s.Bookings.ListIDsTx(ctx, t.tx, f)
}

func (t *sqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.Payments.CreateTx(ctx, t.tx, p)
}

func (t *sqlTx) GetPaymentByBooking(ctx context.Context, bookingID uint64) (model.Payment, error) {
	return t.s.Payments.GetByBookingTx(ctx, t.tx, bookingID)
}

func (t *sqlTx) LockPayment(ctx context.Context, id uint64) (model.Payment, error) {
	return t.s.Payments.LockTx(ctx, t.tx, id)
}

func (t *sqlTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.Payments.UpdateTx(ctx, t.tx, p)
}

func (t *sqlTx) ListPendingRefundIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	return t.s.Payments.PendingRefundIDsTx(ctx, t.tx, afterID, limit)
}
