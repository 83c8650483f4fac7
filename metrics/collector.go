package metrics

import (
	"go-datastore-cassandra/flush"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "datastore"

type Collector struct {
	flusher *flush.Flusher

	processLatency *prometheus.Desc
	flushLatency   *prometheus.Desc
	pending        *prometheus.Desc
	flushed        *prometheus.Desc
	failed         *prometheus.Desc
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	flushMetric := c.flusher.GetMetric()

	ch <- prometheus.MustNewConstMetric(
		c.processLatency,
		prometheus.GaugeValue,
		float64(flushMetric.ProcessLatencyMs),
	)

	ch <- prometheus.MustNewConstMetric(
		c.flushLatency,
		prometheus.GaugeValue,
		float64(flushMetric.FlushLatencyMs),
	)

	ch <- prometheus.MustNewConstMetric(
		c.pending,
		prometheus.GaugeValue,
		float64(flushMetric.PendingCount),
	)

	ch <- prometheus.MustNewConstMetric(
		c.flushed,
		prometheus.CounterValue,
		float64(flushMetric.FlushedTotal),
	)

	ch <- prometheus.MustNewConstMetric(
		c.failed,
		prometheus.CounterValue,
		float64(flushMetric.FailedTotal),
	)
}

func NewMetricCollector(flusher *flush.Flusher) *Collector {
	return &Collector{
		flusher: flusher,

		processLatency: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "cassandra_pending_latency_ms", "current"),
			"Age of the oldest pending operation at its last flush in ms",
			[]string{},
			nil,
		),

		flushLatency: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "cassandra_flush_latency_ms", "current"),
			"Cassandra flush latency ms",
			[]string{},
			nil,
		),

		pending: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "cassandra_pending_operations", "current"),
			"Pending operations waiting for the next flush",
			[]string{},
			nil,
		),

		flushed: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "cassandra_flushed_operations", "total"),
			"Pending operations flushed successfully",
			[]string{},
			nil,
		),

		failed: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "cassandra_failed_flushes", "total"),
			"Flushes that returned an error",
			[]string{},
			nil,
		),
	}
}

func (c *Collector) Unregister() {
	prometheus.Unregister(c)
}
