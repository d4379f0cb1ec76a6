package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

const holdColumns = `id, seat_id, trip_id, user_id, session_id, hold_until, created_at`

// SeatHoldRepo provides data access to the seat_holds table.  All
// timestamps are UTC; expiry comparisons use the caller's now rather than
// the database clock so a single operation sees one consistent instant.
type SeatHoldRepo struct {
	db *sqlx.DB
}

func NewSeatHoldRepo(db *sqlx.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

// LockActiveTx returns holds on the given seats that are still active at
// now.  FOR UPDATE makes it a locking read, so under REPEATABLE READ it
// sees holds committed after the transaction's snapshot was taken.
func (r *SeatHoldRepo) LockActiveTx(ctx context.Context, tx *sqlx.Tx, seatIDs []uint64, now time.Time) ([]model.SeatHold, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+holdColumns+` FROM seat_holds
	                         WHERE seat_id IN (?) AND hold_until >= ?
	                         ORDER BY seat_id FOR UPDATE`, seatIDs, now.UTC())
	if err != nil {
		return nil, err
	}
	var holds []model.SeatHold
	if err := tx.SelectContext(ctx, &holds, tx.Rebind(q), args...); err != nil {
		return nil, err
	}
	return holds, nil
}

// ActiveByTripTx lists the active holds of a trip without locking.  Used
// for availability listings only.
func (r *SeatHoldRepo) ActiveByTripTx(ctx context.Context, tx *sqlx.Tx, tripID uint64, now time.Time) ([]model.SeatHold, error) {
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds WHERE trip_id = ? AND hold_until >= ? ORDER BY seat_id`,
		tripID, now.UTC())
	return holds, err
}

// CreateMultipleTx inserts multiple seat_holds within the provided
// transaction and fills in their ids.  Passing an empty slice has no
// effect and returns nil.
func (r *SeatHoldRepo) CreateMultipleTx(ctx context.Context, tx *sqlx.Tx, holds []model.SeatHold) error {
	if len(holds) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO seat_holds (seat_id, trip_id, user_id, session_id, hold_until, created_at) VALUES `)
	args := make([]interface{}, 0, len(holds)*6)
	for i, h := range holds {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, h.SeatID, h.TripID, h.UserID, h.SessionID, h.HoldUntil.UTC(), h.CreatedAt.UTC())
	}
	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return err
	}
	created, err := r.LockBySessionTx(ctx, tx, holds[0].SessionID)
	if err != nil {
		return err
	}
	bySeat := make(map[uint64]uint64, len(created))
	for _, h := range created {
		bySeat[h.SeatID] = h.ID
	}
	for i := range holds {
		holds[i].ID = bySeat[holds[i].SeatID]
	}
	return nil
}

// ListBySessionTx returns every hold of a session without locking.
func (r *SeatHoldRepo) ListBySessionTx(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]model.SeatHold, error) {
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds WHERE session_id = ? ORDER BY seat_id`, sessionID)
	return holds, err
}

// LockBySessionTx returns and locks every hold of a session, expired or not.
func (r *SeatHoldRepo) LockBySessionTx(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]model.SeatHold, error) {
	var holds []model.SeatHold
	err := tx.SelectContext(ctx, &holds,
		`SELECT `+holdColumns+` FROM seat_holds WHERE session_id = ? ORDER BY seat_id FOR UPDATE`, sessionID)
	return holds, err
}

// DeleteBySessionTx removes all holds of a session and returns how many
// rows were deleted.
func (r *SeatHoldRepo) DeleteBySessionTx(ctx context.Context, tx *sqlx.Tx, sessionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM seat_holds WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredTx removes every hold with hold_until < now.
func (r *SeatHoldRepo) DeleteExpiredTx(ctx context.Context, tx *sqlx.Tx, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM seat_holds WHERE hold_until < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
