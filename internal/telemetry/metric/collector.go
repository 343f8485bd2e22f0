package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RootStats is a point-in-time summary of a backup root.
type RootStats struct {
	// Sessions counts session directories by state.
	Sessions map[string]int
	// Bytes is the total size of all files under the root.
	Bytes int64
}

// RootCollector reports RootStats on every scrape.
type RootCollector struct {
	stat func() (RootStats, error)

	sessionsDesc *prometheus.Desc
	bytesDesc    *prometheus.Desc
}

// NewRootCollector creates a collector backed by stat.
func NewRootCollector(root string, stat func() (RootStats, error)) *RootCollector {
	labels := prometheus.Labels{"root": root}
	return &RootCollector{
		stat: stat,
		sessionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "root", "sessions"),
			"Session directories under the backup root, by state.",
			[]string{"state"}, labels,
		),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "root", "bytes"),
			"Bytes used by the backup root.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RootCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.bytesDesc
}

// Collect implements prometheus.Collector.
func (c *RootCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.stat()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.sessionsDesc, err)
		return
	}
	for state, n := range stats.Sessions {
		ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(n), state)
	}
	ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.GaugeValue, float64(stats.Bytes))
}
