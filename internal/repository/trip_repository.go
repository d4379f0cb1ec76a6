package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

const tripColumns = `id, origin, destination, bus_number, departure_time, arrival_time, fare_cents, created_at`

// TripRepo manages persistence for trips.
type TripRepo struct {
	db *sqlx.DB
}

func NewTripRepo(db *sqlx.DB) *TripRepo { return &TripRepo{db: db} }

// CreateTx inserts a new trip using the provided transaction.  On success
// the generated ID and created_at are populated on t.
func (r *TripRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, t *model.Trip) error {
	const q = `INSERT INTO trips (origin, destination, bus_number, departure_time, arrival_time, fare_cents)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.Origin, t.Destination, t.BusNumber,
		t.DepartureTime.UTC(), t.ArrivalTime.UTC(), t.FareCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetTx(ctx, tx, uint64(id))
	if err != nil {
		return err
	}
	*t = created
	return nil
}

// GetTx fetches a trip by id.  Returns ErrNotFound when missing.
func (r *TripRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Trip, error) {
	var t model.Trip
	err := tx.GetContext(ctx, &t, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
	return t, mapErr(err)
}
