package schema

import (
	"slices"
)

// Document is the decoded form of a schema file.
type Document struct {
	Tables []TableDocument `json:"tables" yaml:"tables"`
}

// TableDocument describes one table as written in the schema file.
type TableDocument struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []Column `json:"columns" yaml:"columns"`
	Indexes []Index  `json:"indexes" yaml:"indexes"`
}

// Column is a named, typed table column. Type is informational; values are
// never coerced to it.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Index lists the columns of a table index.
type Index struct {
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns    []string `json:"columns" yaml:"columns"`
	PrimaryKey bool     `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	Unique     bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// TableDefinition is the catalog's view of a table. It is never mutated after
// the catalog is built; callers must not modify the returned slices.
type TableDefinition struct {
	Name    string
	Columns []Column

	// PrimaryKey is the ordered primary key column set. It may be empty.
	PrimaryKey []string

	// UniqueConstraint is the ordered column set of the first unique index,
	// or PrimaryKey when the table has none.
	UniqueConstraint []string

	position map[string]int
	keys     []string
}

func newTableDefinition(doc TableDocument) *TableDefinition {
	def := &TableDefinition{
		Name:     doc.Name,
		Columns:  slices.Clone(doc.Columns),
		position: make(map[string]int, len(doc.Columns)),
	}
	for i, c := range def.Columns {
		def.position[c.Name] = i
	}

	for _, idx := range doc.Indexes {
		switch {
		case idx.PrimaryKey:
			def.PrimaryKey = slices.Clone(idx.Columns)
		case idx.Unique && def.UniqueConstraint == nil:
			def.UniqueConstraint = slices.Clone(idx.Columns)
		}
	}
	if def.UniqueConstraint == nil {
		def.UniqueConstraint = def.PrimaryKey
	}

	def.keys = slices.Clone(def.PrimaryKey)
	for _, c := range def.UniqueConstraint {
		if !slices.Contains(def.keys, c) {
			def.keys = append(def.keys, c)
		}
	}
	return def
}

// Column returns the named column.
func (t *TableDefinition) Column(name string) (Column, bool) {
	i, ok := t.position[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// HasColumn reports whether the table declares the column.
func (t *TableDefinition) HasColumn(name string) bool {
	_, ok := t.position[name]
	return ok
}

// Position returns the declaration index of a column, or -1.
func (t *TableDefinition) Position(name string) int {
	if i, ok := t.position[name]; ok {
		return i
	}
	return -1
}

// KeyColumns returns PrimaryKey followed by the unique constraint columns not
// already in it.
func (t *TableDefinition) KeyColumns() []string {
	return t.keys
}

// DistinctUnique reports whether the unique constraint is a different column
// set from the primary key.
func (t *TableDefinition) DistinctUnique() bool {
	return len(t.UniqueConstraint) > 0 && !slices.Equal(t.UniqueConstraint, t.PrimaryKey)
}

// SortColumns orders column names by declaration position. Unknown names sort
// last, alphabetically.
func (t *TableDefinition) SortColumns(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		pa, pb := t.Position(a), t.Position(b)
		switch {
		case pa >= 0 && pb >= 0:
			return pa - pb
		case pa >= 0:
			return -1
		case pb >= 0:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
}
