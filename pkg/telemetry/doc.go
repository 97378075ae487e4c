// Package telemetry provides observability instrumentation for Stanchion:
// structured logging (zerolog), tracing (OpenTelemetry), and Prometheus
// metrics for the retry, transaction, and validation subsystems. The core
// packages take logging collaborators explicitly; nothing in this package
// installs process-wide state beyond the OTel provider registration.
package telemetry
