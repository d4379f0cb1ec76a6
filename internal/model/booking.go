package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingPaymentFailed  BookingStatus = "PAYMENT_FAILED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingCompleted      BookingStatus = "COMPLETED"
	BookingArchived       BookingStatus = "ARCHIVED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPendingPayment: {BookingConfirmed, BookingPaymentFailed, BookingCancelled},
	BookingPaymentFailed:  {BookingConfirmed, BookingPendingPayment, BookingCancelled},
	BookingConfirmed:      {BookingCompleted, BookingCancelled},
	BookingCompleted:      {BookingArchived},
}

// CanTransitionTo reports whether a booking may move from s to next.
// Rewriting the same status is allowed so retries stay idempotent.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPendingPayment, BookingConfirmed, BookingPaymentFailed,
		BookingCancelled, BookingCompleted, BookingArchived:
		return true
	}
	return false
}

// Booking records a user's purchase of one or more seats on a trip.  The
// total is fixed at creation (seat count times the trip fare) and never
// recomputed.  Bookings are never deleted; old ones move to ARCHIVED.
//
// Fields:
//  ID               - primary key identifier.
//  UserID           - user who made the booking.
//  TripID           - trip being booked.
//  SeatIDs          - seats covered by the booking (booking_seats rows).
//  TotalAmountCents - total price in cents.
//  Status           - lifecycle state.
//  BookingDate      - creation timestamp; drives unpaid timeout and archival.
//  UpdatedAt        - last status change.
type Booking struct {
	ID               uint64        `db:"id" json:"id"`
	UserID           uint64        `db:"user_id" json:"userId"`
	TripID           uint64        `db:"trip_id" json:"tripId"`
	SeatIDs          []uint64      `db:"-" json:"seatIds"`
	TotalAmountCents int64         `db:"total_amount_cents" json:"totalAmountCents"`
	Status           BookingStatus `db:"status" json:"status"`
	BookingDate      time.Time     `db:"booking_date" json:"bookingDate"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updatedAt"`
}

// BookingDetail is a booking together with its payment, returned by the
// confirm and read endpoints.
type BookingDetail struct {
	Booking
	Payment *Payment `json:"payment,omitempty"`
}
