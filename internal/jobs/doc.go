// Package jobs holds the in-memory registry of AI processing jobs.
//
// The Registry merges records arriving from the sync channel and from
// authoritative pulls under one rule set: updated_at is the merge key, older
// records are dropped as stale, and status moves follow the
// queued → processing → {completed, failed} lifecycle. Backward moves are
// rejected with ErrInvalidTransition. Readers always receive copies.
package jobs
