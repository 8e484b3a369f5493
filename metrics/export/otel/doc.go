// Package otel binds guard counters and histograms to OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [sessionguard.Guard.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate guard state.
package otel
