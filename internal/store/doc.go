// Package store keeps a SQLite history of recorded test runs.
//
// A run is one summarised "go test -json" stream: its packages, its
// clause counts and one row per Then clause result.
//
// # Ordering
//
// Runs and clauses carry a seq assigned from a logical clock, never a
// timestamp. Every query orders by seq, so listings are identical no
// matter when or where the database was written.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
