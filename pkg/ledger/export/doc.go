// Package export writes ledger query results as JSON or CSV for the
// analytics surface and the ledger export command.
package export
