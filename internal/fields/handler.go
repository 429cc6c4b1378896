package fields

import (
	"context"
	"sort"

	"github.com/fangwd/restup/internal/record"
)

// Handler transforms one field of a row.
type Handler interface {
	// Store runs before the row is written and returns the value to persist.
	Store(ctx context.Context, table string, row record.Row, field string) (any, error)

	// Load runs after the row is read and returns the value to report.
	Load(ctx context.Context, table string, row record.Row, field string) (any, error)
}

// Func is the signature of one direction of a handler.
type Func func(ctx context.Context, table string, row record.Row, field string) (any, error)

// Funcs adapts a pair of functions to a Handler. A nil function leaves the
// value unchanged.
type Funcs struct {
	StoreFunc Func
	LoadFunc  Func
}

func (f Funcs) Store(ctx context.Context, table string, row record.Row, field string) (any, error) {
	if f.StoreFunc == nil {
		return row[field], nil
	}
	return f.StoreFunc(ctx, table, row, field)
}

func (f Funcs) Load(ctx context.Context, table string, row record.Row, field string) (any, error) {
	if f.LoadFunc == nil {
		return row[field], nil
	}
	return f.LoadFunc(ctx, table, row, field)
}

// Registry maps table and field names to handlers.
type Registry map[string]map[string]Handler

// Register installs h for table.field, replacing any earlier handler.
func (r Registry) Register(table, field string, h Handler) {
	if r[table] == nil {
		r[table] = map[string]Handler{}
	}
	r[table][field] = h
}

// Fields returns the handled field names of table in sorted order.
func (r Registry) Fields(table string) []string {
	names := make([]string, 0, len(r[table]))
	for name := range r[table] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the handler for table.field.
func (r Registry) Handler(table, field string) (Handler, bool) {
	h, ok := r[table][field]
	return h, ok
}
