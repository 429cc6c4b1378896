// Package fields runs per-field handlers over rows.
//
// A handler owns one column of one table. Store runs on rows before they are
// written, Load on rows after they are read. Each (row, field) pair with a
// registered handler is one unit of work; a Pipeline runs at most K units at
// a time and admits the rest in FIFO order.
//
// Handlers see a snapshot of their row and return the replacement value.
// Results are written back only after every unit has finished, and only if
// none failed.
package fields
