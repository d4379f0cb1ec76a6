package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates every table the service uses.  Statements are idempotent
// so Migrate can run on every start.  users is normally owned by the auth
// service and is created here only when missing.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(32) NOT NULL DEFAULT 'CUSTOMER',
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS trips (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		origin VARCHAR(128) NOT NULL,
		destination VARCHAR(128) NOT NULL,
		bus_number VARCHAR(32) NOT NULL DEFAULT '',
		departure_time DATETIME(6) NOT NULL,
		arrival_time DATETIME(6) NOT NULL,
		fare_cents BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_trips_departure (departure_time)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seats (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		trip_id BIGINT UNSIGNED NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		seat_type VARCHAR(16) NOT NULL,
		is_booked BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE KEY uq_seats_trip_number (trip_id, seat_number),
		CONSTRAINT fk_seats_trip FOREIGN KEY (trip_id) REFERENCES trips(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		seat_id BIGINT UNSIGNED NOT NULL,
		trip_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		session_id CHAR(36) NOT NULL,
		hold_until DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_holds_session (session_id),
		KEY idx_holds_seat_until (seat_id, hold_until),
		KEY idx_holds_until (hold_until),
		CONSTRAINT fk_holds_seat FOREIGN KEY (seat_id) REFERENCES seats(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		trip_id BIGINT UNSIGNED NOT NULL,
		total_amount_cents BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		booking_date DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_bookings_user (user_id),
		KEY idx_bookings_status_date (status, booking_date),
		CONSTRAINT fk_bookings_trip FOREIGN KEY (trip_id) REFERENCES trips(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id BIGINT UNSIGNED NOT NULL,
		seat_id BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (booking_id, seat_id),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings(id),
		CONSTRAINT fk_booking_seats_seat FOREIGN KEY (seat_id) REFERENCES seats(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT UNSIGNED NOT NULL,
		amount_cents BIGINT NOT NULL,
		method VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		gateway_payment_id VARCHAR(64) NULL,
		transaction_id VARCHAR(64) NULL,
		gateway_response VARCHAR(255) NOT NULL DEFAULT '',
		payment_date DATETIME(6) NOT NULL,
		refund_date DATETIME(6) NULL,
		refund_reference VARCHAR(64) NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_payments_booking (booking_id),
		KEY idx_payments_status (status),
		CONSTRAINT fk_payments_booking FOREIGN KEY (booking_id) REFERENCES bookings(id)
	) ENGINE=InnoDB`,
}

// Migrate creates the schema when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
