package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/fangwd/restup/internal/schema"
)

// MySQL is the dialect for github.com/go-sql-driver/mysql.
type MySQL struct{}

var mysqlLiterals = literalStyle{
	quote: quoteMySQL,
	boolean: func(b bool) string {
		if b {
			return "TRUE"
		}
		return "FALSE"
	},
}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

// Placeholder produces a result without touching any table.
func (MySQL) Placeholder() string { return "DO 0" }

// PrepareDSN enables multi-statement execution, which batches rely on.
func (MySQL) PrepareDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (MySQL) QuoteIdent(name string) string {
	return quoteIdentWith('`', name)
}

func (MySQL) Literal(v any) (string, error) {
	return mysqlLiterals.render(v)
}

// LockStatements never use START TRANSACTION: it would release the table
// lock. With autocommit off, the transaction starts implicitly under the lock.
func (d MySQL) LockStatements(table string) []string {
	return []string{
		"SET autocommit = 0",
		"SET foreign_key_checks = 0",
		"LOCK TABLES " + d.QuoteIdent(table) + " WRITE",
	}
}

func (MySQL) UnlockStatements() []string {
	return []string{
		"UNLOCK TABLES",
		"SET foreign_key_checks = 1",
		"SET autocommit = 1",
	}
}

// ExecBatch sends all statements in one round trip and reads back the
// per-statement results from the driver.
func (MySQL) ExecBatch(ctx context.Context, conn *sql.Conn, stmts []string) ([]Result, error) {
	if len(stmts) == 0 {
		return nil, nil
	}
	query := strings.Join(stmts, ";\n")

	var results []Result
	err := conn.Raw(func(dc any) error {
		execer, ok := dc.(driver.ExecerContext)
		if !ok {
			return fmt.Errorf("mysql: driver connection %T cannot exec", dc)
		}
		res, err := execer.ExecContext(ctx, query, nil)
		if err != nil {
			return err
		}
		multi, ok := res.(mysql.Result)
		if !ok {
			return fmt.Errorf("mysql: result %T has no per-statement results", res)
		}
		ids := multi.AllLastInsertIds()
		affected := multi.AllRowsAffected()
		if len(ids) != len(stmts) || len(affected) != len(stmts) {
			return fmt.Errorf("mysql: %d results for %d statements", len(ids), len(stmts))
		}
		results = make([]Result, len(stmts))
		for i := range stmts {
			results[i].RowsAffected = affected[i]
			if isInsert(stmts[i]) {
				results[i].LastInsertID = ids[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// AutoIncrement is true for integer columns; the server reports 0 when
// nothing was generated.
func (MySQL) AutoIncrement(col schema.Column) bool {
	return col.Type == "" || strings.Contains(strings.ToUpper(col.Type), "INT")
}

func (d MySQL) Introspect(ctx context.Context, db *sql.DB) (schema.Document, error) {
	doc := schema.Document{Tables: []schema.TableDocument{}}
	byName := map[string]int{}

	rows, err := db.QueryContext(ctx, `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_NAME, ORDINAL_POSITION`)
	if err != nil {
		return doc, err
	}
	for rows.Next() {
		var table, column, typ string
		if err := rows.Scan(&table, &column, &typ); err != nil {
			rows.Close()
			return doc, err
		}
		i, ok := byName[table]
		if !ok {
			i = len(doc.Tables)
			byName[table] = i
			doc.Tables = append(doc.Tables, schema.TableDocument{Name: table, Indexes: []schema.Index{}})
		}
		doc.Tables[i].Columns = append(doc.Tables[i].Columns, schema.Column{Name: column, Type: typ})
	}
	if err := rows.Close(); err != nil {
		return doc, err
	}

	rows, err = db.QueryContext(ctx, `SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND NON_UNIQUE = 0
		ORDER BY TABLE_NAME, INDEX_NAME = 'PRIMARY' DESC, INDEX_NAME, SEQ_IN_INDEX`)
	if err != nil {
		return doc, err
	}
	defer rows.Close()

	for rows.Next() {
		var table, index, column string
		if err := rows.Scan(&table, &index, &column); err != nil {
			return doc, err
		}
		i, ok := byName[table]
		if !ok {
			continue
		}
		td := &doc.Tables[i]
		n := len(td.Indexes)
		if n == 0 || td.Indexes[n-1].Name != index {
			idx := schema.Index{Name: index, Unique: true}
			if index == "PRIMARY" {
				idx = schema.Index{Name: index, PrimaryKey: true}
			}
			td.Indexes = append(td.Indexes, idx)
			n++
		}
		td.Indexes[n-1].Columns = append(td.Indexes[n-1].Columns, column)
	}
	return doc, rows.Err()
}
