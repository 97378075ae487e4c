// Package progress provides passive unit-of-work sinks for long-running
// operations. Sinks count completed units; they do not render anything.
// Callers own display and wire a sink of their choosing into the operation.
package progress
