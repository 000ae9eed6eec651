package repository

import (
	"errors"

	"github.com/lib/pq"
)

// pqUniqueViolation is the Postgres error code for unique constraint breaks.
const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Duplicate prevention for attendance and enrollments relies on
// this: the pre-insert existence checks are advisory, the constraint is the
// guarantee under concurrent submissions.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
