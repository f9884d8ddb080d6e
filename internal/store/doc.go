// Package store provides SQLite-backed run history for nbiso.
//
// A session is one `nbiso run` invocation; each executed notebook adds a
// run row to it. History is append-only: sessions are finished once with
// their totals and runs are never rewritten.
//
// # Ordering
//
//   - Sessions are listed newest first by start time, then id.
//   - Runs are listed by their seq within the session, which is the index
//     of the test case in the collected order, not completion order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Times are stored as RFC 3339 text in UTC.
package store
