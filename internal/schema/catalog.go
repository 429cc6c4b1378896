package schema

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidSchema is wrapped by every error that rejects a schema document.
var ErrInvalidSchema = errors.New("invalid schema")

// Catalog holds the table definitions of one schema document.
// It is immutable and safe for concurrent use.
type Catalog struct {
	tables map[string]*TableDefinition
	order  []string
}

// NewCatalog validates doc and builds the catalog.
func NewCatalog(doc Document) (*Catalog, error) {
	c := &Catalog{tables: make(map[string]*TableDefinition, len(doc.Tables))}

	for i, td := range doc.Tables {
		if err := checkTable(td); err != nil {
			return nil, fmt.Errorf("%w: tables[%d]: %w", ErrInvalidSchema, i, err)
		}
		if _, dup := c.tables[td.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrInvalidSchema, td.Name)
		}
		c.tables[td.Name] = newTableDefinition(td)
		c.order = append(c.order, td.Name)
	}

	return c, nil
}

// Table returns the definition of the named table.
func (c *Catalog) Table(name string) (*TableDefinition, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table in document order.
func (c *Catalog) Tables() []*TableDefinition {
	out := make([]*TableDefinition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tables[name])
	}
	return out
}

// Document renders the catalog back into a schema document.
func (c *Catalog) Document() Document {
	var doc Document
	for _, t := range c.Tables() {
		td := TableDocument{Name: t.Name, Columns: slices.Clone(t.Columns), Indexes: []Index{}}
		if len(t.PrimaryKey) > 0 {
			td.Indexes = append(td.Indexes, Index{Columns: slices.Clone(t.PrimaryKey), PrimaryKey: true})
		}
		if t.DistinctUnique() {
			td.Indexes = append(td.Indexes, Index{Columns: slices.Clone(t.UniqueConstraint), Unique: true})
		}
		doc.Tables = append(doc.Tables, td)
	}
	return doc
}

func checkTable(td TableDocument) error {
	if td.Name == "" {
		return errors.New("table name is required")
	}
	if len(td.Columns) == 0 {
		return fmt.Errorf("table %q: no columns", td.Name)
	}

	seen := make(map[string]bool, len(td.Columns))
	for _, col := range td.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %q: column name is required", td.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("table %q: duplicate column %q", td.Name, col.Name)
		}
		seen[col.Name] = true
	}

	primaries := 0
	for i, idx := range td.Indexes {
		if len(idx.Columns) == 0 {
			return fmt.Errorf("table %q: index %d has no columns", td.Name, i)
		}
		for _, name := range idx.Columns {
			if !seen[name] {
				return fmt.Errorf("table %q: index %d references unknown column %q", td.Name, i, name)
			}
		}
		if idx.PrimaryKey {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("table %q: %d primary key indexes", td.Name, primaries)
	}

	return nil
}
