package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

const paymentColumns = `id, booking_id, amount_cents, method, status, gateway_payment_id, transaction_id,
	gateway_response, payment_date, refund_date, refund_reference, updated_at`

// PaymentRepo is the payment ledger.  There is at most one payment per
// booking (unique booking_id).
type PaymentRepo struct {
	db *sqlx.DB
}

func NewPaymentRepo(db *sqlx.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// CreateTx inserts a payment.  Returns ErrDuplicate when the booking
// already has one.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, p *model.Payment) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.PaymentDate
	}
	const q = `INSERT INTO payments (booking_id, amount_cents, method, status, gateway_payment_id, transaction_id,
	                                 gateway_response, payment_date, refund_date, refund_reference, updated_at)
	           VALUES (:booking_id, :amount_cents, :method, :status, :gateway_payment_id, :transaction_id,
	                   :gateway_response, :payment_date, :refund_date, :refund_reference, :updated_at)`
	res, err := tx.NamedExecContext(ctx, q, p)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByBookingTx returns the payment of a booking.
func (r *PaymentRepo) GetByBookingTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64) (model.Payment, error) {
	var p model.Payment
	err := tx.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID)
	return p, mapErr(err)
}

// LockTx returns a payment by id with an exclusive row lock.
func (r *PaymentRepo) LockTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Payment, error) {
	var p model.Payment
	err := tx.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = ? FOR UPDATE`, id)
	return p, mapErr(err)
}

// UpdateTx writes every mutable column of p.
func (r *PaymentRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, p *model.Payment) error {
	const q = `UPDATE payments SET amount_cents = :amount_cents, method = :method, status = :status,
	               gateway_payment_id = :gateway_payment_id, transaction_id = :transaction_id,
	               gateway_response = :gateway_response, payment_date = :payment_date,
	               refund_date = :refund_date, refund_reference = :refund_reference, updated_at = :updated_at
	           WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, q, p)
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

// PendingRefundIDsTx lists payments marked REFUNDED whose gateway refund
// has not been executed yet, ascending from afterID.
func (r *PaymentRepo) PendingRefundIDsTx(ctx context.Context, tx *sqlx.Tx, afterID uint64, limit int) ([]uint64, error) {
	q := `SELECT id FROM payments WHERE status = ? AND refund_reference IS NULL AND id > ? ORDER BY id`
	args := []interface{}{model.PaymentRefunded, afterID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var ids []uint64
	err := tx.SelectContext(ctx, &ids, q, args...)
	return ids, err
}
