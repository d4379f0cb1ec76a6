// Package payment charges bookings through a payment gateway and settles
// the refunds recorded when paid bookings are cancelled.
package payment

import (
	"context"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

// Request is a charge request sent to the gateway.
type Request struct {
	BookingID   uint64
	PaymentID   uint64
	AmountCents int64
	Method      model.PaymentMethod
}

// RefundRequest asks the gateway to return a settled charge.  PaymentID
// doubles as the idempotency key.
type RefundRequest struct {
	PaymentID        uint64
	GatewayPaymentID string
	AmountCents      int64
}

// Result is the gateway's answer.  Status is SUCCESS, FAILED or PENDING.
type Result struct {
	Status           model.PaymentStatus
	GatewayPaymentID string
	TransactionID    string
	Message          string
}

// Gateway is an external payment processor.  An error means the outcome
// is unknown; a declined charge is a FAILED Result with a nil error.
type Gateway interface {
	ProcessPayment(ctx context.Context, req Request) (Result, error)
	RefundPayment(ctx context.Context, req RefundRequest) (Result, error)
}
