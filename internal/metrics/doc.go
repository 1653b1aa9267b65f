// Package metrics defines the Prometheus collectors exported by the
// gateway and analytics services. Constructors register on an injected
// Registerer; production wiring passes prometheus.DefaultRegisterer and
// serves Handler at /metrics.
package metrics
