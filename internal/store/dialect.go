package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fangwd/restup/internal/schema"
)

// Result is the driver outcome of one statement in a batch.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Dialect captures what differs between SQL backends.
type Dialect interface {
	// Name identifies the dialect ("sqlite", "mysql").
	Name() string

	// DriverName is the database/sql driver to open.
	DriverName() string

	// PrepareDSN adds the connection parameters the engine relies on.
	PrepareDSN(dsn string) (string, error)

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string

	// Literal renders a value as an SQL literal.
	Literal(v any) (string, error)

	// Placeholder is an inert statement that produces exactly one result.
	Placeholder() string

	// LockStatements disable autocommit, relax foreign key checks and take
	// the exclusive lock on table. A transaction is open afterwards.
	LockStatements(table string) []string

	// UnlockStatements release the lock taken by LockStatements after the
	// transaction has ended.
	UnlockStatements() []string

	// ExecBatch executes statements in order on conn and reports one Result
	// per statement.
	ExecBatch(ctx context.Context, conn *sql.Conn, stmts []string) ([]Result, error)

	// AutoIncrement reports whether the driver's insert id identifies rows
	// whose primary key is the given column.
	AutoIncrement(col schema.Column) bool

	// Introspect reads table definitions from the database.
	Introspect(ctx context.Context, db *sql.DB) (schema.Document, error)
}

// DialectFor returns the dialect registered for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "", "sqlite3", "sqlite":
		return SQLite{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}
