// Package repository defines the persistence contract of the booking core
// and its MySQL implementation.  The sentinel values below are shared by
// every implementation so that services can tell apart "row missing" and
// "unique key violated" from genuine storage failures.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup, update or delete targets a row
// that does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique
// constraint (station name, user email, participant on a reservation).
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is the server error number for ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL duplicate-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return false
}
