// Package record provides the row representation shared by every other
// package, plus the deterministic key hashing used to match submitted rows
// against each other and against rows read back from the database.
//
// This package imports nothing internal. A Row is a plain column->value map;
// values are whatever encoding/json (with UseNumber) or the SQL driver
// produced: string, json.Number, int64, float64, bool, []byte, time.Time or nil.
//
// Key hashing rules:
//   - Values are rendered to a type-agnostic string form, so 12, "12" and
//     json.Number("12") address the same key.
//   - Strings are NFC normalised and case folded.
//   - Every value is length prefixed before hashing, so ("1-23") and ("12-3")
//     or ("ab","c") and ("a","bc") never collide.
//   - A hash is undefined when any key column is absent from the row.
package record
