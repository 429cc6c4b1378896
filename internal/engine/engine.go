package engine

import (
	"context"
	"log/slog"

	"github.com/fangwd/restup/internal/fields"
	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/request"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

// DefaultBatchBytes is the default byte budget of one statement batch and of
// one key SELECT.
const DefaultBatchBytes = 1 << 20

// Engine serves get, update and claim over one store and catalog.
//
// Engine is safe for concurrent use. It holds no in-process lock; every
// call checks out its own connection.
type Engine struct {
	store      *store.Store
	catalog    *schema.Catalog
	compiler   *querysql.Compiler
	fields     *fields.Pipeline
	batchBytes int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchBytes sets the statement batch budget. Zero or less disables
// splitting.
func WithBatchBytes(n int) Option {
	return func(e *Engine) {
		e.batchBytes = n
	}
}

// WithFields installs the field handler pipeline.
func WithFields(p *fields.Pipeline) Option {
	return func(e *Engine) {
		e.fields = p
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. The engine takes ownership of s; Close closes it.
func New(s *store.Store, catalog *schema.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		catalog:    catalog,
		compiler:   querysql.NewCompiler(s.Dialect()),
		batchBytes: DefaultBatchBytes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the schema catalog.
func (e *Engine) Catalog() *schema.Catalog {
	return e.catalog
}

// Close releases all pooled connections.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) table(op, name string) (*schema.TableDefinition, error) {
	t, ok := e.catalog.Table(name)
	if !ok {
		return nil, newError(KindSchema, op, name, -1, "table does not exist")
	}
	return t, nil
}

// Get reads rows matching d and runs the Load field handlers over them.
func (e *Engine) Get(ctx context.Context, d *request.Descriptor) ([]record.Row, error) {
	const op = "get"
	t, err := e.table(op, d.Table)
	if err != nil {
		return nil, err
	}

	sel := querysql.Select{Table: t, Columns: d.Columns}
	if d.HasRowID {
		if len(t.PrimaryKey) != 1 {
			return nil, newError(KindQuery, op, t.Name, -1, "row id needs a single-column primary key")
		}
		sel.Where = querysql.Compare{Column: t.PrimaryKey[0], Op: querysql.OpEq, Value: d.RowID}
	} else {
		sel.Where = d.Where.Predicate()
		sel.Sort = d.Sort
		sel.Limit = d.Limit
	}

	query, err := e.compiler.Select(sel)
	if err != nil {
		return nil, classify(op, t.Name, err)
	}
	rows, err := e.store.Query(ctx, query)
	if err != nil {
		return nil, classify(op, t.Name, err)
	}
	if err := e.fields.Load(ctx, t.Name, rows); err != nil {
		return nil, classify(op, t.Name, err)
	}
	return rows, nil
}
