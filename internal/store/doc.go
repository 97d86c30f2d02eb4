// Package store keeps the session ledger using SQLite.
//
// # Data Models
//
//   - EventRecord: one admitted feed event and what the engine did with it
//     (routed, echo, closed, unroutable)
//   - MessageRecord: one display message in reveal order, including local
//     provisional and system messages that never came from the feed
//
// # SQLite Configuration
//
// The default path is ":memory:", so the ledger lives exactly as long as the
// session. A file path keeps it around for inspection after exit; nothing
// reads it back on the next start.
//
//	PRAGMA journal_mode=WAL;
//
// In-memory databases are pinned to a single connection because every
// connection to ":memory:" opens a separate database.
//
// # Error Handling
//
//   - ErrDuplicateEvent: the event id is already recorded
//
// # Testing
//
// Use NewMockStore() for unit tests that don't care about SQL, and
// NewSQLiteStore(":memory:") or a t.TempDir() path for integration tests.
package store
