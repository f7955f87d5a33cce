// Package engine is the reconciliation layer of the watcher.
//
// A single goroutine (Run) owns every store mutation. Channel events arrive
// through Deliver, full-refresh pulls run on helper goroutines and are merged
// back on the loop, and operator actions perform their upstream write first
// and then post the local change to the loop. Every merge is guarded by
// record recency, so the observable state of a job always reflects the
// newest update seen on either path.
//
// After each mutation the engine recomputes a View (status counts, cost
// rollups, quota ratio, provider health), stores it atomically and fans it
// out to subscribers. Readers only ever see frozen copies.
package engine
