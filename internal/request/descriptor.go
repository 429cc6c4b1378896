package request

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/record"
)

// ErrInvalid is returned for malformed request URLs and bodies.
var ErrInvalid = errors.New("invalid request")

// DefaultLimit is the row limit when the request names none.
const DefaultLimit = 1

// Where is either raw SQL or a list of conditions, never both.
type Where struct {
	Raw        string
	Conditions []querysql.Compare
}

// IsZero reports whether the request has no filter.
func (w Where) IsZero() bool {
	return w.Raw == "" && len(w.Conditions) == 0
}

// Predicate converts w for the compiler; nil when there is no filter.
func (w Where) Predicate() querysql.Predicate {
	if w.Raw != "" {
		return querysql.Raw(w.Raw)
	}
	if len(w.Conditions) == 0 {
		return nil
	}
	and := make(querysql.And, len(w.Conditions))
	for i, c := range w.Conditions {
		and[i] = c
	}
	return and
}

// Columns returns the condition columns in order.
func (w Where) Columns() []string {
	cols := make([]string, len(w.Conditions))
	for i, c := range w.Conditions {
		cols[i] = c.Column
	}
	return cols
}

// Descriptor is a normalised request.
type Descriptor struct {
	Table string

	// Columns to return; nil means all.
	Columns []string

	// RowID selects one row by its single-column primary key.
	RowID string
	HasRowID bool

	Where Where
	Sort  []querysql.SortKey
	Limit int

	// Update holds the claim assignments. Non-nil selects claim semantics
	// on a read.
	Update record.Row

	// Attached maps the upload field to its declared byte length, or -1
	// when no length was given.
	Attached map[string]int

	// Rows are the submitted rows of a write.
	Rows []record.Row
}

// IsClaim reports whether a read should claim rows.
func (d *Descriptor) IsClaim() bool {
	return d.Update != nil
}

// AttachedField returns the upload field, if any.
func (d *Descriptor) AttachedField() (string, int, bool) {
	for field, n := range d.Attached {
		return field, n, true
	}
	return "", 0, false
}

// SetBody decodes a write body into Rows. With an attached field the body is
// a JSON row, a NUL byte, then the binary payload; otherwise it is a JSON
// object or array.
func (d *Descriptor) SetBody(body []byte) error {
	field, size, ok := d.AttachedField()
	if !ok {
		rows, err := record.DecodeRows(body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		d.Rows = rows
		return nil
	}

	row := record.Row{}
	payload := body
	if i := bytes.IndexByte(body, 0); i >= 0 {
		payload = body[i+1:]
		if i > 0 {
			rows, err := record.DecodeRows(body[:i])
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalid, err)
			}
			if len(rows) != 1 {
				return fmt.Errorf("%w: attached upload takes one row, got %d", ErrInvalid, len(rows))
			}
			row = rows[0]
		}
	}
	if size >= 0 && len(payload) != size {
		return fmt.Errorf("%w: %s payload is %d bytes, declared %d", ErrInvalid, field, len(payload), size)
	}
	row[field] = bytes.Clone(payload)
	d.Rows = []record.Row{row}
	return nil
}
