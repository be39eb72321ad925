// Package store provides SQLite-backed storage for the local replica: the
// units it hosts, cycle balances, the call log and the tokens minted through
// its development ledger.
//
// # Patterns
//
// Logical time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Listing queries order by seq, then id COLLATE BINARY
//
// Idempotent call log:
//   - Call rows are keyed by a content-addressed id (ir.CallID)
//   - Writing the same row twice is a no-op (ON CONFLICT DO NOTHING)
//
// Atomic accounting:
//   - CreateUnit debits the payer and inserts the unit in one transaction
//   - Balances can never go negative (CHECK constraint + ErrInsufficientCycles)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
