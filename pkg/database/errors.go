package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation   = "23505"
	pqLockNotAvailable  = "55P03"
	pqSerializationFail = "40001"
)

// IsNoRows reports whether err is the driver's "no rows" sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, pqUniqueViolation)
}

// IsLockNotAvailable reports whether err came from a NOWAIT lock that could not be taken.
func IsLockNotAvailable(err error) bool {
	return hasCode(err, pqLockNotAvailable)
}

// IsSerializationFailure reports whether err is a Postgres serialization failure.
func IsSerializationFailure(err error) bool {
	return hasCode(err, pqSerializationFail)
}

func hasCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
