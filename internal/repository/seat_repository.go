package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

const seatColumns = `id, trip_id, seat_number, seat_type, is_booked`

// SeatRepo provides access to the seats table.  The booked flag is only
// changed through SetBookedTx on rows previously locked with LockTx.
type SeatRepo struct {
	db *sqlx.DB
}

func NewSeatRepo(db *sqlx.DB) *SeatRepo { return &SeatRepo{db: db} }

// CreateBulkTx inserts all seats of a trip in one statement and fills in
// their generated ids.  All seats must share the same TripID.
func (r *SeatRepo) CreateBulkTx(ctx context.Context, tx *sqlx.Tx, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO seats (trip_id, seat_number, seat_type, is_booked) VALUES `)
	args := make([]interface{}, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, s.TripID, s.SeatNumber, s.SeatType, s.Booked)
	}
	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return mapErr(err)
	}
	// read ids back by seat number rather than relying on consecutive auto-increment values
	created, err := r.ListByTripTx(ctx, tx, seats[0].TripID)
	if err != nil {
		return err
	}
	byNumber := make(map[uint32]uint64, len(created))
	for _, s := range created {
		byNumber[s.SeatNumber] = s.ID
	}
	for i := range seats {
		seats[i].ID = byNumber[seats[i].SeatNumber]
	}
	return nil
}

// ListByTripTx returns every seat of a trip ordered by id.
func (r *SeatRepo) ListByTripTx(ctx context.Context, tx *sqlx.Tx, tripID uint64) ([]model.Seat, error) {
	var seats []model.Seat
	err := tx.SelectContext(ctx, &seats, `SELECT `+seatColumns+` FROM seats WHERE trip_id = ? ORDER BY id`, tripID)
	return seats, err
}

// LockTx takes exclusive row locks on the given seats in ascending id
// order and returns the rows that exist.
func (r *SeatRepo) LockTx(ctx context.Context, tx *sqlx.Tx, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+seatColumns+` FROM seats WHERE id IN (?) ORDER BY id FOR UPDATE`, seatIDs)
	if err != nil {
		return nil, err
	}
	var seats []model.Seat
	if err := tx.SelectContext(ctx, &seats, tx.Rebind(q), args...); err != nil {
		return nil, err
	}
	return seats, nil
}

// SetBookedTx flips the booked flag on the given seats.
func (r *SeatRepo) SetBookedTx(ctx context.Context, tx *sqlx.Tx, seatIDs []uint64, booked bool) error {
	if len(seatIDs) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE seats SET is_booked = ? WHERE id IN (?)`, booked, seatIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(q), args...)
	return err
}
