package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Snapshot is a point-in-time view of the operational gauges, served on the
// ops endpoint for dashboards that don't scrape Prometheus.
type Snapshot struct {
	GatewayConnected bool    `json:"gateway_connected"`
	HandlersInflight float64 `json:"handlers_inflight"`
	BlacklistSize    float64 `json:"blacklist_size"`
	ConnectedServers float64 `json:"connected_servers"`
	SuspiciousUsers  float64 `json:"suspicious_users"`
}

// Collect reads the current gauge values.
func Collect() Snapshot {
	return Snapshot{
		GatewayConnected: GaugeValue(GatewayConnectionState) == 1,
		HandlersInflight: GaugeValue(GatewayHandlersInflight),
		BlacklistSize:    GaugeValue(BlacklistSize),
		ConnectedServers: GaugeValue(ConnectedServers),
		SuspiciousUsers:  GaugeValue(SuspiciousUsers),
	}
}

// GaugeValue reads the current value of a prometheus.Gauge.
func GaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}
