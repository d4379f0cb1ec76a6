package model

import "time"

// SeatHold represents a temporary claim on a seat during checkout.  All
// holds created by one hold request share a SessionID.  A hold is active
// up to and including HoldUntil and expired once now is past it.
//
// Fields:
//  ID        - primary key identifier.
//  SeatID    - seat being held.
//  TripID    - trip of the held seat.
//  UserID    - user who requested the hold.
//  SessionID - opaque id grouping the holds of one checkout attempt.
//  HoldUntil - expiry instant.
//  CreatedAt - creation timestamp.
type SeatHold struct {
	ID        uint64    `db:"id" json:"id"`
	SeatID    uint64    `db:"seat_id" json:"seatId"`
	TripID    uint64    `db:"trip_id" json:"tripId"`
	UserID    uint64    `db:"user_id" json:"userId"`
	SessionID string    `db:"session_id" json:"sessionId"`
	HoldUntil time.Time `db:"hold_until" json:"holdUntil"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ActiveAt reports whether the hold still reserves its seat at now.
func (h SeatHold) ActiveAt(now time.Time) bool { return !h.HoldUntil.Before(now) }

// HoldSession is the result of a successful hold request.
type HoldSession struct {
	SessionID string    `json:"sessionId"`
	TripID    uint64    `json:"tripId"`
	SeatIDs   []uint64  `json:"seatIds"`
	HoldUntil time.Time `json:"holdUntil"`
}
