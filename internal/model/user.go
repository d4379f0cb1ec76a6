package model

import "time"

// Roles carried in the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// User represents an account record in the `users` table.  Accounts are
// created by the external auth service; this service only checks that a
// user exists before letting it hold seats.
//
// Fields:
//  ID        - primary key identifier of the user.
//  Email     - unique email address.
//  Name      - display name.
//  Role      - CUSTOMER or ADMIN.
//  CreatedAt - timestamp of creation.
type User struct {
	ID        uint64    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
