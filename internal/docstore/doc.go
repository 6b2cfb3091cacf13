// Package docstore provides SQLite-backed replicated document storage and
// live subscriptions.
//
// # Documents
//
// Each document is a content.Map stored as JSON with a sequence number and
// a content hash. Every committed mutation appends a row to the changes
// table; the global rev column orders all changes across documents and
// across processes sharing the database.
//
// A document's id is the base58 ed25519 public key generated at Create.
// The secret half stays in signing_keys so the document can sign on its
// own behalf.
//
// # Subscriptions
//
// Open returns a Handle. Callbacks registered with Handle.Subscribe are
// never invoked inline: every delivery, including the initial snapshot, is
// queued on a Dispatcher and run one at a time on its Run goroutine. Each
// delivery carries the document's sequence number, and a callback is never
// handed a version older than one it has already seen, so each document's
// updates arrive in commit order. Deliveries for a closed handle are
// dropped.
//
// Changes made through this Store are published immediately. Changes made
// by other processes are picked up by Poll.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers while one process writes
//   - synchronous=NORMAL
//   - busy_timeout=5000 for cross-process lock contention
package docstore
