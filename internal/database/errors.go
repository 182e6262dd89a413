package database

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation, e.g. a URL the
// user has already saved
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgerrcode.UniqueViolation
}

// IsForeignKeyViolation reports a dangling reference, e.g. a task pointing
// at a deleted item
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == pgerrcode.ForeignKeyViolation
}

// IsUnreachable reports failures where the statement never got an answer:
// dial errors, timeouts and the server shutting down. Constraint and syntax
// errors are not included.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	code := pgCode(err)
	return pgerrcode.IsConnectionException(code) || code == pgerrcode.AdminShutdown || code == pgerrcode.CannotConnectNow
}
