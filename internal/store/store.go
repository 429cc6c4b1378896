package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
)

// DefaultMaxConns is the default pool size.
const DefaultMaxConns = 8

// Config selects the backend and sizes the pool.
type Config struct {
	// Driver is "sqlite3" or "mysql".
	Driver string

	// DSN is passed to the driver after the dialect adds its required
	// parameters.
	DSN string

	// MaxConns caps open connections. Zero means DefaultMaxConns.
	MaxConns int
}

// Store wraps the connection pool and its dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open creates the pool and verifies that a connection can be made.
//
// This function does not create tables; the schema is owned by the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := dialect.PrepareDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("prepare dsn: %w", err)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	return &Store{db: db, dialect: dialect}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect of the backend.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Query runs a read on any pooled connection and returns normalised rows.
func (s *Store) Query(ctx context.Context, query string) ([]record.Row, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return scanRows(rows)
}

// Checkout pins one pooled connection for a lock-scoped operation.
func (s *Store) Checkout(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout connection: %w", err)
	}
	return &Session{conn: conn, dialect: s.dialect}, nil
}

// Introspect builds a schema document from the live database.
func (s *Store) Introspect(ctx context.Context) (schema.Document, error) {
	doc, err := s.dialect.Introspect(ctx, s.db)
	if err != nil {
		return schema.Document{}, fmt.Errorf("introspect: %w", err)
	}
	return doc, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
