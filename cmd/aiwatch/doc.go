// Package main hosts the aiwatch CLI.
//
// `aiwatch run` starts the watcher: it opens the sync channel, pulls the
// dashboard state, serves the local control API and keeps a state cache.
// Every other command is a thin client of that API, so the watcher must be
// running for them to answer.
package main
