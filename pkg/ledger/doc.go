// Package ledger defines the append-only audit ledger: one immutable
// record per pipeline decision, plus correction records for human
// overrides.
//
// The ledger is the pipeline's source of truth. No action is approved
// without an already-durable record, the storage-assigned sequence numbers
// are strictly increasing, and nothing in the interface can edit or delete
// a written record — corrections reference the original through
// CorrectsSeq and the original stays readable forever.
//
// Storage backends live in ledger/storage (SQLite for durable runs, memory
// for tests); ledger/export writes query results as JSON or CSV for the
// analytics surface.
package ledger
