// internal/database/store.go
package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrHostNotFound    = errors.New("host not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrAlertNotFound   = errors.New("alert not found")
)

// Store defines the interface for database operations.
type Store interface {
	// Host operations
	GetHosts(ctx context.Context) ([]Host, error)
	GetHost(ctx context.Context, id string) (*Host, error)
	CreateHost(ctx context.Context, host *Host) error
	UpdateHost(ctx context.Context, host *Host) error
	// UpdateHostStatus writes only status and (when non-nil) last-seen,
	// leaving configuration fields untouched.
	UpdateHostStatus(ctx context.Context, id string, status HostStatus, lastSeen *time.Time) error
	// DeleteHost removes the host and cascades its heartbeats and alerts.
	DeleteHost(ctx context.Context, id string) error

	// Heartbeat operations
	RecordHeartbeat(ctx context.Context, hb *Heartbeat) error
	GetHeartbeats(ctx context.Context, hostID string, limit int) ([]Heartbeat, error)

	// Service operations
	GetServices(ctx context.Context, enabledOnly bool) ([]Service, error)
	GetService(ctx context.Context, id string) (*Service, error)
	CreateService(ctx context.Context, svc *Service) error
	UpdateService(ctx context.Context, svc *Service) error
	// UpdateServiceHealth writes the hysteresis state of a service:
	// status, consecutive failure count, last error and last check time.
	UpdateServiceHealth(ctx context.Context, id string, status ServiceStatus, consecutiveFailures int, lastError string, checkedAt time.Time) error
	DeleteService(ctx context.Context, id string) error
	RecordServiceCheck(ctx context.Context, check *ServiceCheck) error
	GetServiceChecks(ctx context.Context, serviceID string, limit int) ([]ServiceCheck, error)

	// Alert operations
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) error
	// FindRecentAlert returns the newest unacknowledged alert matching
	// subject, kind and message created at or after since, or nil.
	FindRecentAlert(ctx context.Context, hostID, serviceID string, kind AlertKind, message string, since time.Time) (*Alert, error)

	// Retention
	DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteServiceChecksBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Close the database connection
	Close() error
}
