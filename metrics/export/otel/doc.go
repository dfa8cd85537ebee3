// Package otel binds engine metrics to an OpenTelemetry meter.
//
// Counters become Int64ObservableCounters. Each latency histogram becomes a
// cumulative bucket gauge with an "le" attribute plus a count gauge. One
// callback reads the engine snapshot per collection; callers own the
// MeterProvider.
package otel
