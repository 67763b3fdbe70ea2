// Package otel publishes panel metrics as OpenTelemetry observable
// instruments. Each counter becomes an Int64ObservableCounter. Each latency
// histogram becomes one cumulative Int64ObservableGauge with an "le"
// attribute per bucket, plus a _count gauge. One callback reads the panel
// snapshot per collection.
//
// Callers own the MeterProvider and pass a Meter in.
package otel
