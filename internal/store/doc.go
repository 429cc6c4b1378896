// Package store owns the database connection pool and everything that differs
// between SQL backends.
//
// The store provides:
//   - Pool: a database/sql pool sized by Config.MaxConns; Close releases it
//   - Sessions: one pooled connection pinned for a lock-scoped operation
//   - Dialects: identifier quoting, literal rendering, lock/unlock
//     statements and multi-statement batch execution for SQLite and MySQL
//   - Introspection: schema documents built from a live database
//
// # Session protocol
//
//	Checkout -> Lock(table) -> Query / ExecBatch -> Commit -> Unlock -> Release
//
// Lock disables autocommit, relaxes foreign key checks and takes an exclusive
// lock that lives in the database, so it serialises writers across processes.
// Any failure after Lock must end with Abort, which rolls back the open
// transaction and destroys the connection instead of returning it to the pool.
//
// # SQLite
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON, deferred to commit while a session holds the lock
//
// The lock is BEGIN IMMEDIATE, i.e. the database write lock.
//
// # MySQL
//
// The lock is LOCK TABLES ... WRITE after SET autocommit = 0. Batches run as
// one multi-statement round trip.
package store
