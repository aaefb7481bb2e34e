package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// DBTX is the querying surface shared by *sql.DB and *sql.Tx. Repositories
// are built on it so a service can run several repository calls inside one
// transaction via WithTx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

var (
	ErrNotFound = errors.New("not found")
)

// isUniqueViolation reports whether the error is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
