// internal/database/models.go
package database

import (
	"time"
)

// HostStatus is the reported liveness state of a monitored host.
type HostStatus string

const (
	HostUnknown HostStatus = "unknown"
	HostUp      HostStatus = "up"
	HostDown    HostStatus = "down"
)

// ScheduleType selects the monitoring window strategy for a host.
type ScheduleType string

const (
	ScheduleAlways        ScheduleType = "always"
	ScheduleBusinessHours ScheduleType = "business_hours"
	// ScheduleCustom is reserved; hosts configured with it are monitored
	// continuously until custom window strategies exist.
	ScheduleCustom ScheduleType = "custom"
)

// WindowConfig describes a recurring local-time monitoring window.
// Weekdays use ISO numbering (1=Monday .. 7=Sunday).
type WindowConfig struct {
	StartTime string `json:"start_time" yaml:"start_time"` // HH:MM
	EndTime   string `json:"end_time" yaml:"end_time"`     // HH:MM
	Weekdays  []int  `json:"weekdays" yaml:"weekdays"`
	Timezone  string `json:"timezone" yaml:"timezone"`
}

// Host is a push-heartbeat monitored subject.
type Host struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`

	CronExpression           string       `json:"cron_expression,omitempty"`
	ExpectedFrequencySeconds int          `json:"expected_frequency_seconds"`
	GracePeriodSeconds       int          `json:"grace_period_seconds"`
	ScheduleType             ScheduleType `json:"schedule_type"`
	// Window overrides the globally configured business-hours window
	// when set. Ignored for ScheduleAlways.
	Window *WindowConfig `json:"window,omitempty"`

	LastSeen *time.Time `json:"last_seen,omitempty"`
	Status   HostStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Heartbeat is one received contact event from a host.
type Heartbeat struct {
	ID        string    `json:"id"`
	HostID    string    `json:"host_id"`
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip,omitempty"`
}

// AlertKind classifies what subsystem raised an alert.
type AlertKind string

const (
	AlertHeartbeat     AlertKind = "heartbeat"
	AlertLogAnalysis   AlertKind = "log_analysis"
	AlertInternet      AlertKind = "internet"
	AlertSystem        AlertKind = "system"
	AlertServiceHealth AlertKind = "service_health"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is immutable once created except for acknowledgement.
// HostID and ServiceID are mutually exclusive; both empty means a
// system-wide alert.
type Alert struct {
	ID        string                 `json:"id"`
	HostID    string                 `json:"host_id,omitempty"`
	ServiceID string                 `json:"service_id,omitempty"`
	Kind      AlertKind              `json:"kind"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ServiceStatus is the hysteresis-tracked health of a polled service.
type ServiceStatus string

const (
	ServiceUnknown   ServiceStatus = "unknown"
	ServiceHealthy   ServiceStatus = "healthy"
	ServiceDegraded  ServiceStatus = "degraded"
	ServiceUnhealthy ServiceStatus = "unhealthy"
)

// Service is an HTTP-polled endpoint with consecutive-failure alerting.
type Service struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	EndpointURL             string            `json:"endpoint_url"`
	Method                  string            `json:"method"`
	ExpectedStatusCode      int               `json:"expected_status_code"`
	ExpectedResponsePattern string            `json:"expected_response_pattern,omitempty"`
	TimeoutSeconds          int               `json:"timeout_seconds"`
	PollFrequencySeconds    int               `json:"poll_frequency_seconds"`
	AuthType                string            `json:"auth_type,omitempty"` // bearer, api_key, basic
	AuthConfig              map[string]string `json:"auth_config,omitempty"`

	AlertThreshold      int           `json:"alert_threshold"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Status              ServiceStatus `json:"status"`
	LastError           string        `json:"last_error,omitempty"`
	LastChecked         *time.Time    `json:"last_checked,omitempty"`
	Enabled             bool          `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceCheck is one recorded poll attempt against a service.
type ServiceCheck struct {
	ID             string    `json:"id"`
	ServiceID      string    `json:"service_id"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"` // success or failure
	StatusCode     int       `json:"status_code,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
}

// AlertFilters narrows GetAlerts results. Zero values mean "any".
type AlertFilters struct {
	HostID       string
	ServiceID    string
	Kind         AlertKind
	Severity     Severity
	Acknowledged *bool
	Since        *time.Time
	Limit        int
}
