// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. For example, ErrNotFound indicates that a row addressed by
// id or PIN does not exist, while ErrConflict signals that a conditional
// update matched no row because the record is no longer in the expected
// state.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no row matches the lookup key.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded update cannot be performed
// because of conflicting state, such as editing a reservation that has
// already left the pending state. Handlers should translate this into an
// HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert violates a unique index.
var ErrDuplicate = errors.New("duplicate key")

// mysqlDuplicateEntry is the server error number for ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isUniqueViolation reports whether err was raised by a unique index, for
// both the MySQL driver and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
