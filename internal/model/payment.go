package model

import "time"

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// RefundNotCharged is the refund reference of a REFUNDED payment that
// never took money from the customer.
const RefundNotCharged = "NOT_CHARGED"

// PaymentMethod is the instrument a customer pays with.
type PaymentMethod string

const (
	MethodCard       PaymentMethod = "CARD"
	MethodUPI        PaymentMethod = "UPI"
	MethodNetBanking PaymentMethod = "NETBANKING"
	MethodWallet     PaymentMethod = "WALLET"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodNetBanking, MethodWallet:
		return true
	}
	return false
}

// Payment is the ledger entry belonging 1:1 to a booking.  REFUNDED is
// set as bookkeeping when a paid booking is cancelled; RefundReference is
// filled once the gateway has actually executed the refund.
//
// Fields:
//  ID               - primary key identifier.
//  BookingID        - owning booking (unique).
//  AmountCents      - amount charged in cents.
//  Method           - payment instrument.
//  Status           - settlement state.
//  GatewayPaymentID - id assigned by the payment gateway (nullable).
//  TransactionID    - gateway transaction id (nullable).
//  GatewayResponse  - last message returned by the gateway.
//  PaymentDate      - when the payment row was created or last charged.
//  RefundDate       - when the gateway refund was executed (nullable).
//  RefundReference  - gateway refund id (nullable).
//  UpdatedAt        - last update timestamp.
type Payment struct {
	ID               uint64        `db:"id" json:"id"`
	BookingID        uint64        `db:"booking_id" json:"bookingId"`
	AmountCents      int64         `db:"amount_cents" json:"amountCents"`
	Method           PaymentMethod `db:"method" json:"method"`
	Status           PaymentStatus `db:"status" json:"status"`
	GatewayPaymentID *string       `db:"gateway_payment_id" json:"gatewayPaymentId,omitempty"`
	TransactionID    *string       `db:"transaction_id" json:"transactionId,omitempty"`
	GatewayResponse  string        `db:"gateway_response" json:"gatewayResponse,omitempty"`
	PaymentDate      time.Time     `db:"payment_date" json:"paymentDate"`
	RefundDate       *time.Time    `db:"refund_date" json:"refundDate,omitempty"`
	RefundReference  *string       `db:"refund_reference" json:"refundReference,omitempty"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updatedAt"`
}
