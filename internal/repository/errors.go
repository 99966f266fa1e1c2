package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// IsTransient reports whether an error is contention that a short retry can
// resolve: serialization failures, deadlocks, and lock timeouts. Everything
// else (constraint violations, connection errors) is permanent.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
