// Package statestore persists the watcher's last known state in SQLite.
//
// The database is a cache, not a source of truth: every full refresh rewrites
// it and the backend stays authoritative. It lets a restarted watcher serve
// the last state it saw while the backend is unreachable. Schema changes bump
// the version in schema.go; users delete the database to adopt the new schema.
package statestore
