// Package realtime assembles the gateway service. It upgrades /ws
// connections, verifies the token from the query string, and hands the
// socket to a session handler; bad credentials are answered with close
// code 1008 after the handshake so clients can distinguish auth failures
// from transport problems. The HTTP side exposes service info, health,
// per-instance connection stats, and the Prometheus scrape endpoint.
package realtime
