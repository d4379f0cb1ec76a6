// Package repository implements the booking store on MySQL.  Each table
// has a small repo type whose transactional methods take an explicit
// *sqlx.Tx and are suffixed with Tx; Store ties them together behind the
// store.Store interface.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// ErrNotFound is returned when a row does not exist.  It is the same value
// as store.ErrNotFound so callers can match either.
var ErrNotFound = store.ErrNotFound

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = store.ErrDuplicate

const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// mapErr translates driver errors into the sentinels above.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return ErrDuplicate
	}
	return err
}

// retryable reports whether err aborted the transaction because of lock
// contention, in which case running it again may succeed.
func retryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
}
