package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes mapped to domain errors.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

// IsDuplicate reports a unique key violation, e.g. inserting an existing id.
func IsDuplicate(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsCheckViolation reports a CHECK constraint failure, such as a driver row
// that is both available and bound to an order.
func IsCheckViolation(err error) bool {
	return hasCode(err, codeCheckViolation)
}

// IsNotFound reports an empty single-row result.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func hasCode(err error, code string) bool {
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == code
}
