// Package prometheus exposes engine counters and latency histograms through
// a prometheus.Collector. Counters are named gosession_*_total and the
// histograms gosession_*_latency_seconds.
//
// Register the [Collector] with your own registry, or mount [Collector.Handler]
// which uses a private one.
package prometheus
