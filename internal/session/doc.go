// Package session tracks the WebSocket connections attached to one gateway
// instance and routes frames between them and the shared broker.
//
// A Session is one connection's server-side state: identity from the
// verified token plus a bounded outbound queue. The Manager registers
// sessions, maps channels to their local members, and holds this
// instance's bus subscriptions; it opens a channel's subscriptions when
// the first local session joins and releases them when the last one
// leaves. The Handler owns the socket itself with the usual two-pump
// split: the read pump parses and dispatches client frames, the write
// pump is the only writer and keeps the connection alive with pings.
//
// Delivery to a session never blocks. When a session's outbound queue is
// full the manager marks it stale and detaches it in the background, so
// one slow client cannot stall fan-out for a channel.
package session
