// Package querysql renders the SQL statements the engine executes.
//
// Statements are plain text with values inlined as dialect literals. The
// write path sizes its batches by statement bytes, and the claim UPDATE is
// built from values just read under the table lock, so there is nothing to
// gain from placeholders and a lot to lose in batch accounting.
//
// Every identifier is quoted by the dialect and checked against the table
// definition first; an unknown column is ErrUnknownColumn. Raw WHERE text from
// the request grammar is passed through, but never with a statement
// separator in it.
package querysql
