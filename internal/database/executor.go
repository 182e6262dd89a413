package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations repositories depend on.
// Both *Connection and a pgxpool.Pool (or a pgxmock pool in tests) satisfy it.
type Querier interface {
	// Query executes a query that returns rows
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)

	// QueryRow executes a query that returns a single row
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row

	// Exec executes a query that doesn't return rows
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Executor extends Querier with the health check used by the server.
type Executor interface {
	Querier

	// Health checks the health of the database connection
	Health(ctx context.Context) error
}

var _ Executor = (*Connection)(nil)
