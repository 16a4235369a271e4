// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"watchtower/internal/database"
)

// Prometheus metrics
var (
	HostStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchtower_host_status",
			Help: "Current host status (0=up, 1=down, 2=unknown)",
		},
		[]string{"host"},
	)

	OverdueDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_overdue_detections_total",
			Help: "Total overdue heartbeat detections",
		},
		[]string{"host"},
	)

	HeartbeatsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_heartbeats_received_total",
			Help: "Total heartbeats received from hosts",
		},
		[]string{"host"},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_alerts_created_total",
			Help: "Total alerts created",
		},
		[]string{"kind", "severity"},
	)

	AlertsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_alerts_deduplicated_total",
			Help: "Alerts suppressed by the deduplication window",
		},
		[]string{"kind"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_notifications_total",
			Help: "Outbound notification attempts by result",
		},
		[]string{"status"},
	)

	ServiceHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchtower_service_health",
			Help: "Polled service health (0=healthy, 1=degraded, 2=unhealthy, 3=unknown)",
		},
		[]string{"service"},
	)

	ServiceConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchtower_service_consecutive_failures",
			Help: "Consecutive poll failures per service",
		},
		[]string{"service"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchtower_poll_duration_seconds",
			Help:    "Time spent polling service endpoints",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchtower_sweep_duration_seconds",
			Help:    "Time spent in evaluation sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	MonitoredHosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_monitored_hosts_total",
			Help: "Number of registered hosts",
		},
	)

	MonitoredServices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_monitored_services_total",
			Help: "Number of enabled polled services",
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) RecordHeartbeat(host string) {
	HeartbeatsReceived.WithLabelValues(host).Inc()
}

func (c *Collector) RecordOverdue(host string) {
	OverdueDetections.WithLabelValues(host).Inc()
}

func (c *Collector) UpdateHostStatus(host string, status database.HostStatus) {
	HostStatus.WithLabelValues(host).Set(hostStatusValue(status))
}

func (c *Collector) RecordAlert(kind database.AlertKind, severity database.Severity) {
	AlertsCreated.WithLabelValues(string(kind), string(severity)).Inc()
}

func (c *Collector) RecordDeduplicated(kind database.AlertKind) {
	AlertsDeduplicated.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) RecordNotification(err error) {
	if err != nil {
		NotificationsSent.WithLabelValues("error").Inc()
		return
	}
	NotificationsSent.WithLabelValues("success").Inc()
}

func (c *Collector) RecordPoll(service, status string, duration time.Duration) {
	PollDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (c *Collector) UpdateServiceHealth(service string, status database.ServiceStatus, consecutiveFailures int) {
	ServiceHealth.WithLabelValues(service).Set(serviceStatusValue(status))
	ServiceConsecutiveFailures.WithLabelValues(service).Set(float64(consecutiveFailures))
}

func (c *Collector) RecordSweep(sweep string, duration time.Duration) {
	SweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	WebSocketConnections.Add(float64(delta))
}

// UpdateSystemMetrics refreshes the registered subject gauges.
func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	hosts, err := c.store.GetHosts(ctx)
	if err != nil {
		return err
	}
	MonitoredHosts.Set(float64(len(hosts)))

	services, err := c.store.GetServices(ctx, true)
	if err != nil {
		return err
	}
	MonitoredServices.Set(float64(len(services)))

	return nil
}

func hostStatusValue(status database.HostStatus) float64 {
	switch status {
	case database.HostUp:
		return 0
	case database.HostDown:
		return 1
	default:
		return 2
	}
}

func serviceStatusValue(status database.ServiceStatus) float64 {
	switch status {
	case database.ServiceHealthy:
		return 0
	case database.ServiceDegraded:
		return 1
	case database.ServiceUnhealthy:
		return 2
	default:
		return 3
	}
}
