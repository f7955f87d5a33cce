// Package events defines the typed messages carried by the sync channel.
//
// Inbound frames are decoded into a closed set of Event types. Both the
// enveloped form {type, jobId, providerId, timestamp, payload} and the flat
// form, where payload fields sit beside type, are accepted. Unknown types
// decode to ErrUnknownType so callers can ignore them.
package events
