// Package queue defines message payloads exchanged over the message broker
// and the consumer that processes them.
package queue

import "time"

// Queue names.  Each event type has its own durable queue.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published when a booking is created, either
// paid (CONFIRMED) or awaiting payment (PENDING_PAYMENT).  It carries
// enough information for downstream consumers to log or notify without
// querying the primary database.
type BookingConfirmedEvent struct {
	BookingID        uint64    `json:"booking_id"`
	UserID           uint64    `json:"user_id"`
	TripID           uint64    `json:"trip_id"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	DepartureTime    time.Time `json:"departure_time"`
	SeatIDs          []uint64  `json:"seat_ids"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	Status           string    `json:"status"`
	PaymentMethod    string    `json:"payment_method"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled by its
// owner or by the unpaid-booking sweep.  PaymentStatus is the payment's
// status after cancellation; REFUNDED means a gateway refund is due.
type BookingCancelledEvent struct {
	BookingID     uint64    `json:"booking_id"`
	UserID        uint64    `json:"user_id"`
	TripID        uint64    `json:"trip_id"`
	SeatIDs       []uint64  `json:"seat_ids"`
	PaymentID     uint64    `json:"payment_id,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}
