// Package storage provides the ledger's storage backends.
//
// SQLiteStorage is the durable production backend: WAL journaling,
// synchronous=FULL so appends survive a crash the moment they return, an
// AUTOINCREMENT sequence column that never reuses numbers, and a partial
// unique index guaranteeing at most one decision record per action ID even
// across processes. MemoryStorage carries identical semantics for tests
// and ephemeral runs.
//
// Neither backend exposes update or delete. The append-only contract is
// structural, not conventional.
package storage
