package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fangwd/restup/internal/engine"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/request"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

// Harness executes the steps of one scenario against an engine.
type Harness struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database file that is removed
// afterwards. A file rather than :memory: keeps the data visible to every
// pooled connection.
//
// Execution flow:
// 1. Create the database and run Schema and Setup
// 2. Build the catalog by introspection
// 3. Execute steps, checking each against its expect clause
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "restup-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(ctx, store.Config{Driver: "sqlite3", DSN: filepath.Join(dir, "scenario.db")})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if _, err := st.DB().ExecContext(ctx, scenario.Schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	for i, stmt := range scenario.Setup {
		if _, err := st.DB().ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to execute setup[%d]: %w", i, err)
		}
	}

	doc, err := st.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	catalog, err := schema.NewCatalog(doc)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if scenario.BatchBytes > 0 {
		opts = append(opts, engine.WithBatchBytes(scenario.BatchBytes))
	}
	h := &Harness{engine: engine.New(st, catalog, opts...), logger: logger}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute steps[%d]: %w", i, err)
		}
	}
	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

// executeStep runs one step and records it. Engine failures are outcomes,
// not errors; only a malformed step returns an error.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	d, err := request.ParseString(step.Path)
	if err != nil {
		return err
	}

	var (
		rows []record.Row
		ids  []any
	)
	switch step.Op {
	case OpGet:
		rows, err = h.engine.Get(ctx, d)
	case OpClaim:
		rows, err = h.engine.Claim(ctx, d)
	case OpUpdate:
		d.Rows = make([]record.Row, len(step.Rows))
		for j, r := range step.Rows {
			d.Rows[j] = record.Row(r)
		}
		ids, err = h.engine.Update(ctx, d)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	event := TraceEvent{Step: index, Op: step.Op, Path: step.Path}
	if err != nil {
		event.Error = "UNKNOWN"
		if kind, ok := engine.KindOf(err); ok && kind != "" {
			event.Error = string(kind)
		}
		h.logger.Debug("step failed", "step", index, "op", step.Op, "error", err)
	} else {
		event.IDs = normalizeSlice(ids)
		event.Rows = normalizeRows(rows)
	}
	result.Trace = append(result.Trace, event)

	for _, msg := range checkStep(step.Expect, event, err) {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", index, step.Op, step.Path, msg))
	}
	return nil
}

// checkStep compares a step's outcome with its expect clause.
func checkStep(exp *ExpectClause, event TraceEvent, err error) []string {
	if err != nil {
		if exp == nil || exp.Error == "" {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		if exp.Error != event.Error {
			return []string{fmt.Sprintf("expected %s error, got: %v", exp.Error, err)}
		}
		return nil
	}
	if exp == nil {
		return nil
	}
	if exp.Error != "" {
		return []string{fmt.Sprintf("expected %s error, step succeeded", exp.Error)}
	}

	var msgs []string
	if exp.IDs != nil {
		if diff := cmp.Diff(normalizeSlice(exp.IDs), event.IDs); diff != "" {
			msgs = append(msgs, "ids mismatch (-want +got):\n"+diff)
		}
	}
	if exp.Count != nil && len(event.Rows) != *exp.Count {
		msgs = append(msgs, fmt.Sprintf("expected %d rows, got %d", *exp.Count, len(event.Rows)))
	}
	if exp.Rows != nil {
		if len(exp.Rows) != len(event.Rows) {
			msgs = append(msgs, fmt.Sprintf("expected %d rows, got %d: %v", len(exp.Rows), len(event.Rows), event.Rows))
		} else {
			for i, want := range exp.Rows {
				if diff := subsetDiff(want, event.Rows[i]); diff != "" {
					msgs = append(msgs, fmt.Sprintf("rows[%d]: %s", i, diff))
				}
			}
		}
	}
	return msgs
}

// normalize maps a row value onto the few types JSON and YAML agree on:
// int64, float64, string, bool, nil, []any and map[string]any.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return string(val)
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(record.TimeLayout)
	case record.Row:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case []any:
		return normalizeSlice(val)
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalize(v)
	}
	return out
}

func normalizeRows(rows []record.Row) []map[string]any {
	if len(rows) == 0 {
		return nil
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = normalizeMap(row)
	}
	return out
}
