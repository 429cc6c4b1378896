package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fangwd/restup/internal/fields"
	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/request"
	"github.com/fangwd/restup/internal/store"
)

// Kind categorizes engine errors.
type Kind string

const (
	// KindSchema indicates an unknown table or column.
	KindSchema Kind = "SCHEMA"

	// KindValidation indicates rows or claim arguments that cannot be
	// processed: missing key columns, inconsistent keys, a claim whose
	// update does not change its predicate.
	KindValidation Kind = "VALIDATION"

	// KindQuery indicates a malformed where or sort clause, or a key
	// tuple too large for the byte budget.
	KindQuery Kind = "QUERY"

	// KindConstraint indicates a row the database rejected: a NOT NULL,
	// UNIQUE, CHECK or foreign key violation.
	KindConstraint Kind = "CONSTRAINT"

	// KindTransport indicates a connection, lock or transaction failure
	// reported by the driver.
	KindTransport Kind = "TRANSPORT"
)

// Error is returned by every engine entry point.
type Error struct {
	Kind Kind

	// Op is the entry point: "get", "update" or "claim".
	Op string

	Table string

	// Row is the index of the offending submitted row, or -1.
	Row int

	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", e.Kind, e.Op, e.Table)
	if e.Row >= 0 {
		fmt.Fprintf(&b, ": row %d", e.Row)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, table string, row int, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Row: row, Message: fmt.Sprintf(format, args...)}
}

// classify wraps err with the kind its sentinel maps to. Field handler
// failures keep no kind; anything else unrecognised comes from the driver.
func classify(op, table string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	var he *fields.HandlerError
	if errors.As(err, &he) {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	kind := KindTransport
	switch {
	case errors.Is(err, querysql.ErrUnknownColumn):
		kind = KindSchema
	case errors.Is(err, querysql.ErrInvalid),
		errors.Is(err, querysql.ErrTooLarge),
		errors.Is(err, request.ErrInvalid):
		kind = KindQuery
	case store.IsConstraintViolation(err):
		kind = KindConstraint
	}
	row := -1
	var re *rowErr
	if errors.As(err, &re) {
		row = re.row
		err = re.err
	}
	return &Error{Kind: kind, Op: op, Table: table, Row: row, Err: err}
}

// KindOf returns the kind of an engine error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}

// IsSchemaError returns true if the error is an unknown table or column.
func IsSchemaError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindSchema
}

// IsValidationError returns true if the error is a validation failure.
func IsValidationError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// IsQueryError returns true if the error is a malformed query.
func IsQueryError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindQuery
}

// IsConstraintError returns true if the database rejected a row.
func IsConstraintError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConstraint
}

// IsTransportError returns true if the error came from the database.
func IsTransportError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransport
}

// ConsistencyFault reports a committed row that resolves to no identity. It
// is a bug, never a recoverable error: Update panics with it.
type ConsistencyFault struct {
	Table string
	Row   int
}

func (f *ConsistencyFault) Error() string {
	return fmt.Sprintf("consistency fault: %s row %d was persisted without an identity", f.Table, f.Row)
}
