// Package ledger stores completed analyses. It is the durable audit trail
// the queue consults to avoid re-queuing finished work; the queue links to
// it only through the (request_id, diff_revision) key and the logical
// analysis_id column.
//
// The ledger may share its SQLite file with the queue store. It creates
// its own tables with IF NOT EXISTS and initializes independently, so
// neither store assumes the other's tables exist. Records saved with the
// fake flag come from dry runs and tests; reconciliation treats them as
// "not analyzed".
package ledger
