package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

const bookingColumns = `b.id, b.user_id, b.trip_id, b.total_amount_cents, b.status, b.booking_date, b.updated_at`

// BookingRepo provides operations on bookings and their seats.  Seats
// covered by a booking live in booking_seats.  Bookings are never deleted.
type BookingRepo struct {
	db *sqlx.DB
}

func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts a booking and its seat rows within the provided
// transaction and populates the generated ID.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, b *model.Booking) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.BookingDate
	}
	const q = `INSERT INTO bookings (user_id, trip_id, total_amount_cents, status, booking_date, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.UserID, b.TripID, b.TotalAmountCents, b.Status,
		b.BookingDate.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.SeatIDs = lo.Uniq(b.SeatIDs)
	if len(b.SeatIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_seats (booking_id, seat_id) VALUES `)
	args := make([]interface{}, 0, len(b.SeatIDs)*2)
	for i, sid := range b.SeatIDs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?)")
		args = append(args, b.ID, sid)
	}
	_, err = tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// GetTx fetches a booking with its seats.  Returns ErrNotFound when missing.
func (r *BookingRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Booking, error) {
	return r.get(ctx, tx, id, "")
}

// LockTx is GetTx with an exclusive lock on the booking row.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Booking, error) {
	return r.get(ctx, tx, id, " FOR UPDATE")
}

func (r *BookingRepo) get(ctx context.Context, tx *sqlx.Tx, id uint64, suffix string) (model.Booking, error) {
	var b model.Booking
	if err := tx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`+suffix, id); err != nil {
		return model.Booking{}, mapErr(err)
	}
	seats, err := r.seatsTx(ctx, tx, []uint64{id})
	if err != nil {
		return model.Booking{}, err
	}
	b.SeatIDs = seats[id]
	return b, nil
}

// ListByUserTx returns all bookings of a user, newest first.
func (r *BookingRepo) ListByUserTx(ctx context.Context, tx *sqlx.Tx, userID uint64) ([]model.Booking, error) {
	var out []model.Booking
	if err := tx.SelectContext(ctx, &out,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.user_id = ? ORDER BY b.id DESC`, userID); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	seats, err := r.seatsTx(ctx, tx, lo.Map(out, func(b model.Booking, _ int) uint64 { return b.ID }))
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].SeatIDs = seats[out[i].ID]
	}
	return out, nil
}

func (r *BookingRepo) seatsTx(ctx context.Context, tx *sqlx.Tx, bookingIDs []uint64) (map[uint64][]uint64, error) {
	q, args, err := sqlx.In(`SELECT booking_id, seat_id FROM booking_seats WHERE booking_id IN (?) ORDER BY booking_id, seat_id`, bookingIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		BookingID uint64 `db:"booking_id"`
		SeatID    uint64 `db:"seat_id"`
	}
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make(map[uint64][]uint64, len(bookingIDs))
	for _, row := range rows {
		out[row.BookingID] = append(out[row.BookingID], row.SeatID)
	}
	return out, nil
}

// UpdateStatusTx sets the status of a booking.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uint64, status model.BookingStatus, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`, status, now.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIDsTx returns the ids of bookings matching f, ascending.
func (r *BookingRepo) ListIDsTx(ctx context.Context, tx *sqlx.Tx, f store.BookingFilter) ([]uint64, error) {
	var (
		where []string
		args  []interface{}
	)
	q := `SELECT b.id FROM bookings b`
	if !f.DepartedBefore.IsZero() {
		q += ` JOIN trips t ON t.id = b.trip_id`
		where = append(where, `t.departure_time < ?`)
		args = append(args, f.DepartedBefore.UTC())
	}
	if len(f.Statuses) > 0 {
		where = append(where, `b.status IN (?)`)
		args = append(args, f.Statuses)
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, `b.booking_date < ?`)
		args = append(args, f.CreatedBefore.UTC())
	}
	if f.AfterID > 0 {
		where = append(where, `b.id > ?`)
		args = append(args, f.AfterID)
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY b.id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(q), args...); err != nil {
		return nil, err
	}
	return ids, nil
}
