package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

// UserRepo reads the 'users' table.  Accounts are managed by the auth
// service; Create exists for seeding and tests.
type UserRepo struct{ db *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	role := u.Role
	if role == "" {
		role = model.RoleCustomer
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, name, role) VALUES (?,?,?)",
		email, u.Name, role)
	if err != nil {
		return 0, mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ExistsTx reports whether a user with the given id exists.
func (r *UserRepo) ExistsTx(ctx context.Context, tx *sqlx.Tx, id uint64) (bool, error) {
	var ok bool
	if err := tx.GetContext(ctx, &ok, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id); err != nil {
		return false, err
	}
	return ok, nil
}
