// Package dedupe tracks recently seen event IDs so at-least-once bus
// consumers can suppress redeliveries within a configurable window.
package dedupe
