package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/fangwd/restup/internal/record"
)

// ErrSessionClosed is returned by a Session after Release or Abort.
var ErrSessionClosed = errors.New("session closed")

// Session is one pinned connection. It is not safe for concurrent use.
type Session struct {
	conn    *sql.Conn
	dialect Dialect
	locked  bool
	inTx    bool
	closed  bool
}

// Dialect returns the dialect of the pinned connection.
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// Locked reports whether Lock succeeded and Unlock has not yet run.
func (s *Session) Locked() bool {
	return s.locked
}

// InTransaction reports whether a transaction opened by Lock is still open.
func (s *Session) InTransaction() bool {
	return s.inTx
}

// Lock takes the exclusive write lock on table and opens a transaction.
// On error the session should be aborted.
func (s *Session) Lock(ctx context.Context, table string) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.inTx = true
	for _, stmt := range s.dialect.LockStatements(table) {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lock %s: %w", table, err)
		}
	}
	s.locked = true
	return nil
}

// Query runs a read on the pinned connection.
func (s *Session) Query(ctx context.Context, query string) ([]record.Row, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Exec runs one statement on the pinned connection.
func (s *Session) Exec(ctx context.Context, stmt string) (Result, error) {
	results, err := s.ExecBatch(ctx, []string{stmt})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ExecBatch runs statements in order and returns one Result per statement.
func (s *Session) ExecBatch(ctx context.Context, stmts []string) ([]Result, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.dialect.ExecBatch(ctx, s.conn, stmts)
}

// Commit ends the transaction opened by Lock.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.inTx = false
	return nil
}

// Rollback discards the transaction opened by Lock.
func (s *Session) Rollback(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.inTx {
		return nil
	}
	s.inTx = false
	if _, err := s.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Unlock commits any open transaction and releases the table lock.
func (s *Session) Unlock(ctx context.Context) error {
	if err := s.Commit(ctx); err != nil {
		return err
	}
	for _, stmt := range s.dialect.UnlockStatements() {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
	}
	s.locked = false
	return nil
}

// Release returns a clean connection to the pool.
func (s *Session) Release() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Abort rolls back what it can and destroys the connection instead of
// returning it to the pool, so no lock or session state leaks to the next
// user. Abort is safe to call after Release.
func (s *Session) Abort(ctx context.Context) {
	if s.closed {
		return
	}
	if s.inTx {
		_ = s.Rollback(context.WithoutCancel(ctx))
	}
	// Returning ErrBadConn from Raw makes database/sql close the driver
	// connection rather than pool it.
	_ = s.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = s.conn.Close()
	s.closed = true
	s.locked = false
	s.inTx = false
}
