// Package queue persists review work items in SQLite and enforces their
// lifecycle.
//
// The Store owns the review_queue table: one row per change request,
// uniqueness on request_id. Status changes go through the transition table
// in models.go; SetStatus and the Mark* helpers reject anything else with
// ErrInvalidTransition. Upsert implements the reconciler's row logic
// (insert as todo, revision-triggered reset, metadata refresh) and
// ResetStaleInProgress is the crash-recovery sweep.
//
// The database file is shared with the analysis ledger. Each package
// creates its own tables with IF NOT EXISTS and neither declares a foreign
// key into the other, because initialization order between the two is not
// guaranteed. The analysis_id column is a logical reference resolved by
// callers at read time.
package queue
