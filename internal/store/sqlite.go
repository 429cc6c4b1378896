package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fangwd/restup/internal/schema"
)

// SQLite is the dialect for github.com/mattn/go-sqlite3.
type SQLite struct{}

var sqliteLiterals = literalStyle{
	quote: quoteStandard,
	boolean: func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	},
}

// sqliteParams are applied to every connection unless the DSN sets them.
var sqliteParams = [][2]string{
	{"_journal_mode", "WAL"},
	{"_synchronous", "NORMAL"},
	{"_busy_timeout", "5000"},
	{"_foreign_keys", "on"},
}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite3" }
func (SQLite) Placeholder() string { return "SELECT 0" }

// PrepareDSN turns a bare path into a file: URI and adds the connection
// pragmas.
func (SQLite) PrepareDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("sqlite: empty dsn")
	}
	base, query, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("sqlite: %w", err)
	}
	for _, p := range sqliteParams {
		if !params.Has(p[0]) {
			params.Set(p[0], p[1])
		}
	}
	if !strings.HasPrefix(base, "file:") {
		base = "file:" + base
	}
	return base + "?" + params.Encode(), nil
}

func (SQLite) QuoteIdent(name string) string {
	return quoteIdentWith('"', name)
}

func (SQLite) Literal(v any) (string, error) {
	return sqliteLiterals.render(v)
}

// LockStatements takes the database write lock. Foreign keys are checked at
// COMMIT instead of per statement; the pragma resets itself when the
// transaction ends.
func (SQLite) LockStatements(string) []string {
	return []string{
		"BEGIN IMMEDIATE",
		"PRAGMA defer_foreign_keys = ON",
	}
}

// UnlockStatements is empty: the write lock ends with the transaction.
func (SQLite) UnlockStatements() []string {
	return nil
}

// ExecBatch runs the statements one by one on the pinned connection. The
// engine is in-process, so there is no round trip to save, and the driver only
// reports the last insert id of a multi-statement Exec.
func (SQLite) ExecBatch(ctx context.Context, conn *sql.Conn, stmts []string) ([]Result, error) {
	results := make([]Result, 0, len(stmts))
	for i, stmt := range stmts {
		res, err := conn.ExecContext(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		var r Result
		r.RowsAffected, _ = res.RowsAffected()
		if isInsert(stmt) {
			r.LastInsertID, _ = res.LastInsertId()
		}
		results = append(results, r)
	}
	return results, nil
}

// AutoIncrement is true for INTEGER PRIMARY KEY columns, which alias the rowid.
// Other integer types (INT, BIGINT) do not; an insert without the key leaves
// it NULL.
func (SQLite) AutoIncrement(col schema.Column) bool {
	return strings.EqualFold(strings.TrimSpace(col.Type), "INTEGER")
}

// Introspect reads user tables, their columns and unique indexes.
func (d SQLite) Introspect(ctx context.Context, db *sql.DB) (schema.Document, error) {
	names, err := queryStrings(ctx, db,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return schema.Document{}, err
	}

	doc := schema.Document{Tables: []schema.TableDocument{}}
	for _, name := range names {
		td, err := d.introspectTable(ctx, db, name)
		if err != nil {
			return schema.Document{}, fmt.Errorf("table %s: %w", name, err)
		}
		doc.Tables = append(doc.Tables, td)
	}
	return doc, nil
}

func (d SQLite) introspectTable(ctx context.Context, db *sql.DB, table string) (schema.TableDocument, error) {
	td := schema.TableDocument{Name: table, Indexes: []schema.Index{}}

	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+d.QuoteIdent(table)+")")
	if err != nil {
		return td, err
	}
	type pkCol struct {
		pos  int
		name string
	}
	var pk []pkCol
	for rows.Next() {
		var (
			cid, notNull, pkPos int
			name, typ           string
			dflt                sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pkPos); err != nil {
			rows.Close()
			return td, err
		}
		td.Columns = append(td.Columns, schema.Column{Name: name, Type: strings.ToLower(typ)})
		if pkPos > 0 {
			pk = append(pk, pkCol{pkPos, name})
		}
	}
	if err := rows.Close(); err != nil {
		return td, err
	}

	if len(pk) > 0 {
		sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
		idx := schema.Index{PrimaryKey: true}
		for _, c := range pk {
			idx.Columns = append(idx.Columns, c.name)
		}
		td.Indexes = append(td.Indexes, idx)
	}

	// index_list does not promise creation order; sqlite_master rowids do.
	unique := map[string]bool{}
	rows, err = db.QueryContext(ctx, "PRAGMA index_list("+d.QuoteIdent(table)+")")
	if err != nil {
		return td, err
	}
	for rows.Next() {
		var (
			seq, isUnique, partial int
			name, origin           string
		)
		if err := rows.Scan(&seq, &name, &isUnique, &origin, &partial); err != nil {
			rows.Close()
			return td, err
		}
		if isUnique == 1 && origin != "pk" && partial == 0 {
			unique[name] = true
		}
	}
	if err := rows.Close(); err != nil {
		return td, err
	}

	indexNames, err := queryStrings(ctx, db,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = `+quoteStandard(table)+` ORDER BY rowid`)
	if err != nil {
		return td, err
	}
	for _, name := range indexNames {
		if !unique[name] {
			continue
		}
		cols, err := queryIndexColumns(ctx, db, d.QuoteIdent(name))
		if err != nil {
			return td, err
		}
		td.Indexes = append(td.Indexes, schema.Index{Name: name, Columns: cols, Unique: true})
	}
	return td, nil
}

func queryIndexColumns(ctx context.Context, db *sql.DB, quotedIndex string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA index_info("+quotedIndex+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno, cid int
			name       sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func isInsert(stmt string) bool {
	stmt = strings.TrimSpace(stmt)
	return len(stmt) >= 6 && strings.EqualFold(stmt[:6], "INSERT")
}
