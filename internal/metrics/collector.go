package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veilnet/veil/internal/vpn"
)

// TunnelCollector exposes the manager's live status and traffic accounting
// as Prometheus metrics without duplicating state.
type TunnelCollector struct {
	manager *vpn.Manager

	stateDesc          *prometheus.Desc
	totalUploadDesc    *prometheus.Desc
	totalDownloadDesc  *prometheus.Desc
	uploadSpeedDesc    *prometheus.Desc
	downloadSpeedDesc  *prometheus.Desc
	connectedSinceDesc *prometheus.Desc
}

// NewTunnelCollector creates a collector reading from the given manager.
func NewTunnelCollector(manager *vpn.Manager) *TunnelCollector {
	return &TunnelCollector{
		manager: manager,
		stateDesc: prometheus.NewDesc(
			"veil_tunnel_state",
			"Tunnel lifecycle state (one series per state, 1 for the active state)",
			[]string{"state"}, nil,
		),
		totalUploadDesc: prometheus.NewDesc(
			"veil_tunnel_uploaded_bytes_total",
			"Cumulative bytes sent through the tunnel",
			nil, nil,
		),
		totalDownloadDesc: prometheus.NewDesc(
			"veil_tunnel_downloaded_bytes_total",
			"Cumulative bytes received through the tunnel",
			nil, nil,
		),
		uploadSpeedDesc: prometheus.NewDesc(
			"veil_tunnel_upload_speed_bytes",
			"Upload speed over the last sampling interval",
			nil, nil,
		),
		downloadSpeedDesc: prometheus.NewDesc(
			"veil_tunnel_download_speed_bytes",
			"Download speed over the last sampling interval",
			nil, nil,
		),
		connectedSinceDesc: prometheus.NewDesc(
			"veil_tunnel_connected_since_timestamp_seconds",
			"Unix timestamp of the current connection's establishment",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *TunnelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.totalUploadDesc
	ch <- c.totalDownloadDesc
	ch <- c.uploadSpeedDesc
	ch <- c.downloadSpeedDesc
	ch <- c.connectedSinceDesc
}

// Collect implements prometheus.Collector.
func (c *TunnelCollector) Collect(ch chan<- prometheus.Metric) {
	status := c.manager.Status()
	for _, state := range []vpn.State{
		vpn.StateDisconnected,
		vpn.StateConnecting,
		vpn.StateConnected,
		vpn.StateDisconnecting,
		vpn.StateError,
	} {
		value := 0.0
		if state == status.State {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, value, state.String())
	}

	stats := c.manager.Stats()
	ch <- prometheus.MustNewConstMetric(c.totalUploadDesc, prometheus.CounterValue, float64(stats.TotalUploaded))
	ch <- prometheus.MustNewConstMetric(c.totalDownloadDesc, prometheus.CounterValue, float64(stats.TotalDownloaded))
	ch <- prometheus.MustNewConstMetric(c.uploadSpeedDesc, prometheus.GaugeValue, float64(stats.UploadSpeed))
	ch <- prometheus.MustNewConstMetric(c.downloadSpeedDesc, prometheus.GaugeValue, float64(stats.DownloadSpeed))
	if stats.ConnectedSince != nil {
		ch <- prometheus.MustNewConstMetric(c.connectedSinceDesc, prometheus.GaugeValue, float64(stats.ConnectedSince.Unix()))
	}
}
