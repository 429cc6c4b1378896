package fields

import (
	"slices"
	"sync"
)

// unit is one handler call: field of rows[row]. pos is its admission order.
type unit struct {
	pos     int
	row     int
	field   string
	handler Handler
}

// unitQueue is a thread-safe FIFO backlog of units.
type unitQueue struct {
	mu     sync.Mutex
	units  []unit
	closed bool
}

// newUnitQueue copies units; the caller keeps its slice for write-back.
func newUnitQueue(units []unit) *unitQueue {
	return &unitQueue{units: slices.Clone(units)}
}

// TryDequeue removes and returns the front unit.
// Returns (unit{}, false) if the queue is empty or closed.
func (q *unitQueue) TryDequeue() (unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.units) == 0 {
		return unit{}, false
	}

	u := q.units[0]

	// Drop the handler reference held by the backing array.
	q.units[0] = unit{}
	q.units = q.units[1:]

	return u, true
}

// Len returns the number of units not yet admitted.
func (q *unitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Close stops admission; later TryDequeue calls report empty.
func (q *unitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
