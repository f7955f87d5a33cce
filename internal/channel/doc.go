// Package channel maintains the websocket sync channel to the backend.
//
// A Session holds at most one connection at a time. It authenticates on
// connect, sends heartbeat pings, measures round-trip latency from matching
// pongs, and redials with jittered exponential backoff whenever the socket
// closes. Decoded events are handed to a Sink; pong and authenticated frames
// are consumed internally.
package channel
