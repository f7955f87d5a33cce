// Package backend talks to the dashboard backend over REST.
//
// Puller fans the full-refresh pull out across every read endpoint and
// returns one Snapshot; a pull either succeeds completely or reports an error
// and the caller keeps its last known state. The write-through calls used by
// the error log and recommendation adapter live here too, along with the
// fire-and-forget retry and cancel actions.
package backend
