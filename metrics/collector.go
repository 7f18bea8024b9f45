package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spanner-go/spanner-go-sdk"
)

const namespace = "spanner"

// Source is the part of a database handle the collector reads on every scrape.
type Source interface {
	Database() string
	SessionStats() spanner.SessionStats
}

// Collector exports session pool state as gauges labelled with the database name.
type Collector struct {
	source Source

	limit               *prometheus.Desc
	minSize             *prometheus.Desc
	sessions            *prometheus.Desc
	multiplexed         *prometheus.Desc
	multiplexedDisabled *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(source Source) *Collector {
	labels := prometheus.Labels{"database": source.Database()}
	desc := func(name, help string, variableLabels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", name), help, variableLabels, labels)
	}

	return &Collector{
		source:              source,
		limit:               desc("pool_limit", "maximal number of regular sessions"),
		minSize:             desc("pool_min_size", "number of regular sessions kept open"),
		sessions:            desc("pool_sessions", "regular sessions by state", "state"),
		multiplexed:         desc("multiplexed", "1 when the multiplexed session is open"),
		multiplexedDisabled: desc("multiplexed_disabled", "1 when the server does not support multiplexed sessions"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.limit
	ch <- c.minSize
	ch <- c.sessions
	ch <- c.multiplexed
	ch <- c.multiplexedDisabled
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.SessionStats()

	ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(stats.Pool.Limit))
	ch <- prometheus.MustNewConstMetric(c.minSize, prometheus.GaugeValue, float64(stats.Pool.MinSize))
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(stats.Pool.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(stats.Pool.InUse), "in_use")
	ch <- prometheus.MustNewConstMetric(c.multiplexed, prometheus.GaugeValue, boolValue(stats.Multiplexed))
	ch <- prometheus.MustNewConstMetric(c.multiplexedDisabled, prometheus.GaugeValue,
		boolValue(stats.MultiplexedDisabled),
	)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
