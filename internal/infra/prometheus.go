package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "etf_cda"

// MetricsCollector exposes a Metrics instance to Prometheus. Values are read
// from a Snapshot at scrape time so the hot path stays on plain atomics.
type MetricsCollector struct {
	m *Metrics

	events      *prometheus.Desc
	legs        *prometheus.Desc
	faults      *prometheus.Desc
	gaps        *prometheus.Desc
	malformed   *prometheus.Desc
	resyncs     *prometheus.Desc
	latency     *prometheus.Desc
	connections *prometheus.Desc
}

// NewMetricsCollector creates a collector over m.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, nil)
	}
	return &MetricsCollector{
		m:           m,
		events:      desc("events_processed_total", "Events applied by sequencers."),
		legs:        desc("legs_settled_total", "Trade legs settled into holdings."),
		faults:      desc("consistency_faults_total", "Consistency faults detected."),
		gaps:        desc("sequence_gaps_total", "Sequence gaps detected."),
		malformed:   desc("malformed_messages_total", "Market messages dropped for bad shape."),
		resyncs:     desc("resyncs_total", "Full snapshots applied."),
		latency:     desc("event_latency_avg_ns", "Average event processing latency in nanoseconds."),
		connections: desc("active_connections", "Open market connections."),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.legs
	ch <- c.faults
	ch <- c.gaps
	ch <- c.malformed
	ch <- c.resyncs
	ch <- c.latency
	ch <- c.connections
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(s.EventsProcessed))
	ch <- prometheus.MustNewConstMetric(c.legs, prometheus.CounterValue, float64(s.LegsSettled))
	ch <- prometheus.MustNewConstMetric(c.faults, prometheus.CounterValue, float64(s.ConsistencyFaults))
	ch <- prometheus.MustNewConstMetric(c.gaps, prometheus.CounterValue, float64(s.SequenceGaps))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(s.MalformedMessages))
	ch <- prometheus.MustNewConstMetric(c.resyncs, prometheus.CounterValue, float64(s.Resyncs))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, float64(s.AvgLatencyNs))
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.ActiveConnections))
}

// MetricsHandler returns an HTTP handler serving m in the Prometheus text format.
func MetricsHandler(m *Metrics) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewMetricsCollector(m)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
