package store

import (
	"context"
	"path/filepath"
	"testing"
)

const testDDL = `
CREATE TABLE url (
	id INTEGER PRIMARY KEY,
	url TEXT COLLATE NOCASE NOT NULL UNIQUE,
	status INTEGER,
	response BLOB
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
`

// createTestStore opens a fresh SQLite store with the test tables.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Config{Driver: "sqlite3", DSN: path, MaxConns: 4})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.DB().Exec(testDDL); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return s
}
