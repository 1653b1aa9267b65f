// Package analytics turns the message event stream into durable metrics.
//
// The Aggregator folds message.created/edited/deleted events into one
// in-memory tumbling window, aligned to the Unix epoch, and flushes it to
// the metrics store when the window rolls over or ages out. The Service
// wires the aggregator to a shared-group Kafka consumer, prunes windows
// past the retention horizon, and serves the aggregated tables over a REST
// read API.
//
// Windows are assigned by arrival time, not by the event's own timestamp.
// A flush that fails keeps its buffers and is retried, so totals converge
// even across store outages; only a crash loses the current partial window.
package analytics
