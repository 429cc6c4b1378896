// Package testutil provides SQLite fixtures shared by package tests.
package testutil

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

// FixtureDDL creates the tables most tests use. Text key columns use
// NOCASE collation so the database agrees with the engine's case-folded key
// matching.
const FixtureDDL = `
CREATE TABLE url (
	id INTEGER PRIMARY KEY,
	url TEXT COLLATE NOCASE NOT NULL UNIQUE,
	status INTEGER,
	response TEXT
);
CREATE TABLE tag (
	name TEXT COLLATE NOCASE PRIMARY KEY,
	count INTEGER
);
CREATE TABLE membership (
	org_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	role TEXT,
	PRIMARY KEY (org_id, user_id)
);
CREATE TABLE account (
	id INTEGER PRIMARY KEY,
	email TEXT COLLATE NOCASE NOT NULL,
	handle TEXT COLLATE NOCASE NOT NULL,
	name TEXT
);
CREATE UNIQUE INDEX account_email ON account (email);
CREATE UNIQUE INDEX account_handle ON account (handle);
CREATE TABLE job (
	id INTEGER PRIMARY KEY,
	status INTEGER NOT NULL DEFAULT 0,
	worker TEXT,
	payload TEXT
);
`

// OpenSQLite opens a store on a fresh database file and runs ddl, or
// FixtureDDL when none is given. The store is closed when the test ends.
func OpenSQLite(t testing.TB, ddl ...string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(context.Background(), store.Config{Driver: "sqlite3", DSN: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if len(ddl) == 0 {
		ddl = []string{FixtureDDL}
	}
	if _, err := s.DB().Exec(strings.Join(ddl, ";\n")); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return s
}

// Catalog builds a catalog from the live database.
func Catalog(t testing.TB, s *store.Store) *schema.Catalog {
	t.Helper()
	doc, err := s.Introspect(context.Background())
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	cat, err := schema.NewCatalog(doc)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

// Exec runs statements directly, bypassing the engine.
func Exec(t testing.TB, s *store.Store, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := s.DB().Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// Rows runs a query directly, bypassing the engine.
func Rows(t testing.TB, s *store.Store, query string) []record.Row {
	t.Helper()
	rows, err := s.Query(context.Background(), query)
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return rows
}

// Logger returns a debug logger that writes through t.Log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
