package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandDuration tracks how long external commands take, by binary.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tunnelui_command_duration_seconds",
		Help:    "Duration of external commands run by the panel",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
	}, []string{"command", "result"})

	// TunnelOperations counts lifecycle operations by kind and outcome.
	TunnelOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnelui_tunnel_operations_total",
		Help: "Tunnel lifecycle operations by kind and result",
	}, []string{"operation", "result"})

	// DNSRecordsDeleted counts records removed through the Cloudflare API.
	DNSRecordsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunnelui_dns_records_deleted_total",
		Help: "DNS records removed through the Cloudflare API",
	})

	// CloudflareAPIRequests counts REST calls by endpoint and status class.
	CloudflareAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnelui_cloudflare_api_requests_total",
		Help: "Cloudflare API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	// ActiveTunnels mirrors the number of tunnels cached as running.
	ActiveTunnels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunnelui_active_tunnels",
		Help: "Tunnels whose cached status is running",
	})

	// InstallInFlight is 1 while a cloudflared install or update runs.
	InstallInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunnelui_install_in_flight",
		Help: "Binary indicator of a running cloudflared install/update",
	})
)

// Result maps an error to the "ok"/"error" label used by the vectors above.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
