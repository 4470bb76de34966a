package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateEmail is returned when an insert collides with an existing email address.
var ErrDuplicateEmail = errors.New("email already registered")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
