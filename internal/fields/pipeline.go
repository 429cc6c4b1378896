package fields

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fangwd/restup/internal/record"
)

// DefaultMaxRunning is the default number of concurrent handler calls.
const DefaultMaxRunning = 8

// Pipeline runs registered handlers over batches of rows.
type Pipeline struct {
	registry   Registry
	maxRunning int
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxRunning bounds concurrent handler calls. Values below 1 mean 1.
func WithMaxRunning(n int) Option {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.maxRunning = n
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a pipeline over registry.
func NewPipeline(registry Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:   registry,
		maxRunning: DefaultMaxRunning,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandlerError reports the first failed unit of a run.
type HandlerError struct {
	Table string
	Field string
	Row   int
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("field %s.%s of row %d: %v", e.Table, e.Field, e.Row, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Store runs the Store direction over rows, replacing handled values in place.
func (p *Pipeline) Store(ctx context.Context, table string, rows []record.Row) error {
	return p.run(ctx, table, rows, Handler.Store)
}

// Load runs the Load direction over rows, replacing handled values in place.
func (p *Pipeline) Load(ctx context.Context, table string, rows []record.Row) error {
	return p.run(ctx, table, rows, Handler.Load)
}

type direction func(h Handler, ctx context.Context, table string, row record.Row, field string) (any, error)

func (p *Pipeline) run(ctx context.Context, table string, rows []record.Row, call direction) error {
	if p == nil {
		return nil
	}
	var units []unit
	for i, row := range rows {
		for _, field := range p.registry.Fields(table) {
			if row.Has(field) {
				h, _ := p.registry.Handler(table, field)
				units = append(units, unit{pos: len(units), row: i, field: field, handler: h})
			}
		}
	}
	if len(units) == 0 {
		return nil
	}

	snapshots := make([]record.Row, len(rows))
	for _, u := range units {
		if snapshots[u.row] == nil {
			snapshots[u.row] = rows[u.row].Clone()
		}
	}

	var (
		queue    = newUnitQueue(units)
		results  = make([]any, len(units))
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	workers := min(p.maxRunning, len(units))
	p.logger.Debug("running field handlers",
		"table", table,
		"units", len(units),
		"workers", workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				u, ok := queue.TryDequeue()
				if !ok {
					return
				}
				v, err := call(u.handler, ctx, table, snapshots[u.row], u.field)
				if err != nil {
					once.Do(func() {
						firstErr = &HandlerError{Table: table, Field: u.field, Row: u.row, Err: err}
						queue.Close()
					})
					return
				}
				results[u.pos] = v
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		p.logger.Debug("field handler failed",
			"table", table,
			"error", firstErr,
			"skipped", queue.Len())
		return firstErr
	}
	for _, u := range units {
		rows[u.row][u.field] = results[u.pos]
	}
	return nil
}
