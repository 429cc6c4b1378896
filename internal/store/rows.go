package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fangwd/restup/internal/record"
)

// scanRows reads every row into a record.Row and closes rows. Textual
// columns come back as string, integers as int64, binary columns as []byte.
func scanRows(rows *sql.Rows) ([]record.Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	out := []record.Row{}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(record.Row, len(columns))
		for i, name := range columns {
			row[name] = normalize(values[i], types[i].DatabaseTypeName())
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func normalize(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	typ := strings.ToUpper(dbType)
	switch {
	case strings.Contains(typ, "BLOB") || strings.Contains(typ, "BINARY"):
		return append([]byte(nil), b...)
	case strings.Contains(typ, "INT"):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
	case typ == "DECIMAL" || typ == "NUMERIC":
		return json.Number(string(b))
	case typ == "FLOAT" || typ == "DOUBLE" || typ == "REAL":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}
