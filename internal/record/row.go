package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Row maps column names to values. Submitted rows may be partial; rows read
// from the database always carry every requested column.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Has reports whether the column is present, including when its value is nil.
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// HasAll reports whether every column is present. It is false for an empty
// column list.
func (r Row) HasAll(columns []string) bool {
	if len(columns) == 0 {
		return false
	}
	for _, c := range columns {
		if !r.Has(c) {
			return false
		}
	}
	return true
}

// Merge copies every field of src onto r; values from src win.
func (r Row) Merge(src Row) {
	for k, v := range src {
		r[k] = v
	}
}

// Tuple returns the values of the given columns in order.
func (r Row) Tuple(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = r[c]
	}
	return out
}

// CloneRows deep-copies a slice of rows (one level).
func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// DecodeRows decodes a JSON object or array of objects into rows.
// Numbers are kept as json.Number so no precision is lost before they are
// rendered back into SQL.
func DecodeRows(data []byte) ([]Row, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("decode rows: empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		for i, r := range rows {
			if r == nil {
				return nil, fmt.Errorf("decode rows: element %d is not an object", i)
			}
		}
		return rows, nil
	}

	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("decode rows: expected an object or an array of objects")
	}
	return []Row{row}, nil
}

// IsEmpty reports whether v counts as "no value" for an identity: nil or the
// empty string.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []byte:
		return len(val) == 0
	}
	return false
}
