// Package localapi serves the watcher's state and actions over HTTP on the
// loopback interface, and provides the typed client the CLI uses.
//
// Routes live under /api. When api.token is set every route, /metrics
// included, requires "Authorization: Bearer <token>".
package localapi
