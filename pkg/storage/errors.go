package storage

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// uniqueViolationCode is the PostgreSQL error code for unique constraint violations
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err was caused by a unique constraint
// violation. It recognizes PostgreSQL error codes and falls back to message
// matching for other drivers used in tests.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}

	// go-sqlite3 reports "UNIQUE constraint failed: <table>.<column>"
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
