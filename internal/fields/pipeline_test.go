package fields

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangwd/restup/internal/record"
)

func upper(ctx context.Context, table string, row record.Row, field string) (any, error) {
	return fmt.Sprintf("%s:%v", table, row[field]), nil
}

func TestPipeline_NoUnitsPassesThrough(t *testing.T) {
	reg := Registry{}
	reg.Register("url", "response", Funcs{StoreFunc: upper})
	p := NewPipeline(reg)

	rows := []record.Row{{"id": 1}, {"id": 2}}
	require.NoError(t, p.Store(context.Background(), "url", rows))
	assert.Equal(t, []record.Row{{"id": 1}, {"id": 2}}, rows)

	require.NoError(t, p.Store(context.Background(), "other", []record.Row{{"response": "x"}}))
}

func TestPipeline_ReplacesHandledFields(t *testing.T) {
	reg := Registry{}
	reg.Register("url", "response", Funcs{StoreFunc: upper})
	reg.Register("url", "body", Funcs{LoadFunc: upper})
	p := NewPipeline(reg, WithMaxRunning(2))

	rows := []record.Row{
		{"id": 1, "response": "a", "body": "b"},
		{"id": 2},
		{"id": 3, "response": nil},
	}
	require.NoError(t, p.Store(context.Background(), "url", rows))
	assert.Equal(t, "url:a", rows[0]["response"])
	assert.Equal(t, "b", rows[0]["body"], "body has no Store handler")
	assert.NotContains(t, rows[1], "response")
	assert.Equal(t, "url:<nil>", rows[2]["response"])

	require.NoError(t, p.Load(context.Background(), "url", rows))
	assert.Equal(t, "url:b", rows[0]["body"])
}

func TestPipeline_EveryRowGetsItsOwnResult(t *testing.T) {
	reg := Registry{}
	reg.Register("t", "name", Funcs{StoreFunc: func(ctx context.Context, table string, row record.Row, field string) (any, error) {
		return strings.ToUpper(row[field].(string)), nil
	}})
	p := NewPipeline(reg, WithMaxRunning(1))

	rows := []record.Row{{"name": "a"}, {"name": "b"}}
	require.NoError(t, p.Store(context.Background(), "t", rows))
	assert.Equal(t, []record.Row{{"name": "A"}, {"name": "B"}}, rows)
}

func TestPipeline_FIFOAdmission(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	track := func(ctx context.Context, table string, row record.Row, field string) (any, error) {
		mu.Lock()
		order = append(order, fmt.Sprintf("%v.%s", row["id"], field))
		mu.Unlock()
		return row[field], nil
	}
	reg := Registry{}
	reg.Register("t", "b", Funcs{StoreFunc: track})
	reg.Register("t", "a", Funcs{StoreFunc: track})
	p := NewPipeline(reg, WithMaxRunning(1))

	rows := []record.Row{{"id": 1, "a": 1, "b": 1}, {"id": 2, "b": 1}, {"id": 3, "a": 1}}
	require.NoError(t, p.Store(context.Background(), "t", rows))
	assert.Equal(t, []string{"1.a", "1.b", "2.b", "3.a"}, order)
}

func TestPipeline_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	slow := func(ctx context.Context, table string, row record.Row, field string) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return row[field], nil
	}
	reg := Registry{}
	reg.Register("t", "f", Funcs{StoreFunc: slow})
	p := NewPipeline(reg, WithMaxRunning(3))

	rows := make([]record.Row, 20)
	for i := range rows {
		rows[i] = record.Row{"f": i}
	}
	require.NoError(t, p.Store(context.Background(), "t", rows))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestPipeline_FirstErrorStopsAdmission(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	failing := func(ctx context.Context, table string, row record.Row, field string) (any, error) {
		calls.Add(1)
		if row["id"] == 2 {
			return nil, boom
		}
		return "changed", nil
	}
	reg := Registry{}
	reg.Register("t", "f", Funcs{StoreFunc: failing})
	p := NewPipeline(reg, WithMaxRunning(1))

	rows := []record.Row{
		{"id": 0, "f": "x"}, {"id": 1, "f": "x"}, {"id": 2, "f": "x"}, {"id": 3, "f": "x"}, {"id": 4, "f": "x"},
	}
	err := p.Store(context.Background(), "t", rows)
	require.ErrorIs(t, err, boom)

	var herr *HandlerError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, 2, herr.Row)
	assert.Equal(t, "f", herr.Field)

	assert.Equal(t, int32(3), calls.Load(), "no unit is admitted after the failure")
	for _, row := range rows {
		assert.Equal(t, "x", row["f"], "rows are untouched when a unit fails")
	}
}

func TestPipeline_ConcurrentFailuresReportOnce(t *testing.T) {
	reg := Registry{}
	reg.Register("t", "f", Funcs{StoreFunc: func(ctx context.Context, table string, row record.Row, field string) (any, error) {
		return nil, fmt.Errorf("fail %v", row["id"])
	}})
	p := NewPipeline(reg, WithMaxRunning(4))

	rows := make([]record.Row, 10)
	for i := range rows {
		rows[i] = record.Row{"id": i, "f": 1}
	}
	err := p.Store(context.Background(), "t", rows)
	require.Error(t, err)

	var herr *HandlerError
	assert.True(t, errors.As(err, &herr))
}

func TestUnitQueue(t *testing.T) {
	units := []unit{{pos: 0, row: 0, field: "a"}, {pos: 1, row: 1, field: "b"}, {pos: 2, row: 1, field: "c"}}
	q := newUnitQueue(units)
	assert.Equal(t, 3, q.Len())

	u, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 0, u.pos)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, unit{pos: 0, row: 0, field: "a"}, units[0], "dequeue leaves the caller's slice alone")

	q.Close()
	_, ok = q.TryDequeue()
	assert.False(t, ok)
}
