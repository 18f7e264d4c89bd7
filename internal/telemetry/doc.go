// Package telemetry provides OpenTelemetry initialization and helpers
// for tracing the transcription server, worker and terminal front-end.
//
// The package configures OTLP HTTP export for traces, logs and metrics.
package telemetry
