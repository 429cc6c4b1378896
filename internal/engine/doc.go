// Package engine resolves, merges and commits row documents, and claims rows
// for work-queue consumers.
//
// Write path (Update):
//
//	field handlers -> dedupe -> lock -> fetch disk keys -> INSERT/UPDATE
//	statements -> batches -> commit -> unlock -> identities
//
// Claim path: lock -> SELECT ... LIMIT n -> UPDATE matched keys -> unlock.
//
// Both paths hold the database's exclusive lock on the table for their whole
// read-then-write round trip, so concurrent callers, in this process or
// another, are serialised by the database. Any failure after the lock is taken
// destroys the connection instead of returning it to the pool.
package engine
