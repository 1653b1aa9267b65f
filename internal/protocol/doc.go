// Package protocol defines the JSON wire types for the realtime fabric.
//
// Two families of types live here. ClientFrame and ServerFrame are the
// WebSocket frames exchanged with connected clients; ServerFrame doubles as
// the payload on the fan-out, typing, and presence bus topics, so a frame
// published on one instance decodes identically on every other. MessageEvent
// is the message lifecycle record consumed from the events topic by the
// analytics aggregator.
//
// Frames are a tagged union over the "type" field. Parsing only validates
// that a type is present; per-type field validation happens in the session
// handler where the error can be answered on the same connection.
package protocol
