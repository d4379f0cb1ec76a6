package model

import "time"

// Trip represents a scheduled bus departure between two cities.  A trip
// carries a single fixed fare applied to every seat and owns the seats
// created when it was scheduled.
//
// Fields:
//  ID            - primary key identifier.
//  Origin        - departure city.
//  Destination   - arrival city.
//  BusNumber     - registration or fleet number of the bus.
//  DepartureTime - when the bus leaves; drives the cancellation window
//                  and trip completion.
//  ArrivalTime   - expected arrival (must be after DepartureTime).
//  FareCents     - per-seat fare in cents.
//  CreatedAt     - creation timestamp.
type Trip struct {
	ID            uint64    `db:"id" json:"id"`
	Origin        string    `db:"origin" json:"origin"`
	Destination   string    `db:"destination" json:"destination"`
	BusNumber     string    `db:"bus_number" json:"busNumber"`
	DepartureTime time.Time `db:"departure_time" json:"departureTime"`
	ArrivalTime   time.Time `db:"arrival_time" json:"arrivalTime"`
	FareCents     int64     `db:"fare_cents" json:"fareCents"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Departed reports whether the trip has left at the given instant.
func (t Trip) Departed(now time.Time) bool { return !now.Before(t.DepartureTime) }
