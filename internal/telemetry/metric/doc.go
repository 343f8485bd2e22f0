// Package metric provides Prometheus metrics for the recovery store.
//
//   - prometheus.go: Recorder, the counters and histograms updated by
//     sessions, the backup observer and the startup scan
//   - collector.go: RootCollector, a scrape-time view of a backup root
//
// All Recorder methods are safe on a nil receiver, so components can be
// built without metrics.
package metric
