package dentalink

import "github.com/prometheus/client_golang/prometheus"

// Monitor doubles as a prometheus.Collector so service deployments can
// scrape the same counters the telemetry sink receives.
var _ prometheus.Collector = (*Monitor)(nil)

var (
	descConnectionsTotal = prometheus.NewDesc(
		"dentalink_connections_total", "Successful WebSocket opens.", nil, nil)
	descConnectionDrops = prometheus.NewDesc(
		"dentalink_connection_drops_total", "Abnormal closures (code other than 1000/1001).", nil, nil)
	descReconnectAttempts = prometheus.NewDesc(
		"dentalink_reconnect_attempts_total", "Scheduled reconnect attempts.", nil, nil)
	descReconnections = prometheus.NewDesc(
		"dentalink_reconnections_total", "Opens that recovered from a drop.", nil, nil)
	descMessagesSent = prometheus.NewDesc(
		"dentalink_messages_sent_total", "Outbound messages written to the wire.", nil, nil)
	descMessagesReceived = prometheus.NewDesc(
		"dentalink_messages_received_total", "Inbound messages read from the wire.", nil, nil)
	descMessagesQueued = prometheus.NewDesc(
		"dentalink_messages_queued_total", "Messages buffered while offline.", nil, nil)
	descMessagesErrored = prometheus.NewDesc(
		"dentalink_messages_errored_total", "Messages that failed to send or decode.", nil, nil)
	descLatencyAvg = prometheus.NewDesc(
		"dentalink_latency_avg_seconds", "Mean ping round-trip over the rolling window.", nil, nil)
	descLatencyLast = prometheus.NewDesc(
		"dentalink_latency_last_seconds", "Most recent ping round-trip.", nil, nil)
)

func (m *Monitor) Describe(ch chan<- *prometheus.Desc) {
	ch <- descConnectionsTotal
	ch <- descConnectionDrops
	ch <- descReconnectAttempts
	ch <- descReconnections
	ch <- descMessagesSent
	ch <- descMessagesReceived
	ch <- descMessagesQueued
	ch <- descMessagesErrored
	ch <- descLatencyAvg
	ch <- descLatencyLast
}

func (m *Monitor) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()
	ch <- prometheus.MustNewConstMetric(descConnectionsTotal, prometheus.CounterValue, float64(s.TotalConnections))
	ch <- prometheus.MustNewConstMetric(descConnectionDrops, prometheus.CounterValue, float64(s.ConnectionDrops))
	ch <- prometheus.MustNewConstMetric(descReconnectAttempts, prometheus.CounterValue, float64(s.ReconnectAttempts))
	ch <- prometheus.MustNewConstMetric(descReconnections, prometheus.CounterValue, float64(s.Reconnections))
	ch <- prometheus.MustNewConstMetric(descMessagesSent, prometheus.CounterValue, float64(s.MessagesSent))
	ch <- prometheus.MustNewConstMetric(descMessagesReceived, prometheus.CounterValue, float64(s.MessagesReceived))
	ch <- prometheus.MustNewConstMetric(descMessagesQueued, prometheus.CounterValue, float64(s.MessagesQueued))
	ch <- prometheus.MustNewConstMetric(descMessagesErrored, prometheus.CounterValue, float64(s.MessagesErrored))
	ch <- prometheus.MustNewConstMetric(descLatencyAvg, prometheus.GaugeValue, s.AverageLatencyMillis/1000)
	ch <- prometheus.MustNewConstMetric(descLatencyLast, prometheus.GaugeValue, s.LastLatencyMillis/1000)
}
