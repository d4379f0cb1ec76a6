package model

// Seat types assigned at trip scheduling time.
const (
	SeatTypeWindow = "WINDOW"
	SeatTypeAisle  = "AISLE"
)

// SeatStatus is the derived availability of a seat at a point in time.
// It is never stored; it is computed from the booked flag and the active
// holds referencing the seat.
type SeatStatus string

const (
	SeatFree   SeatStatus = "FREE"
	SeatHeld   SeatStatus = "HELD"
	SeatBooked SeatStatus = "BOOKED"
)

// Seat describes a physical seat on the bus serving one trip.  Seats are
// created together with their trip and never deleted while it exists.
// Booked is only mutated under a row lock by the inventory coordinator.
//
// Fields:
//  ID         - primary key identifier.
//  TripID     - trip to which this seat belongs.
//  SeatNumber - number printed on the seat (1..N).
//  SeatType   - WINDOW or AISLE.
//  Booked     - whether the seat is sold.
type Seat struct {
	ID         uint64 `db:"id" json:"id"`
	TripID     uint64 `db:"trip_id" json:"tripId"`
	SeatNumber uint32 `db:"seat_number" json:"seatNumber"`
	SeatType   string `db:"seat_type" json:"seatType"`
	Booked     bool   `db:"is_booked" json:"booked"`
}

// SeatAvailability pairs a seat with its status for availability listings.
type SeatAvailability struct {
	Seat
	Status SeatStatus `json:"status"`
}
