// internal/monitoring/alerts.go - alert lifecycle: dedup, creation, notify, status transitions
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
	"watchtower/internal/metrics"
)

// DefaultDedupWindow bounds notification storms from a flapping subject
// to roughly one per five minutes per distinct message.
const DefaultDedupWindow = 300 * time.Second

const notifyTimeout = 30 * time.Second

// Notifier delivers an alert to an external channel. Delivery is
// best-effort: the alert manager logs failures and never lets them
// affect state transitions.
type Notifier interface {
	Notify(ctx context.Context, alert *database.Alert) error
}

// MultiNotifier fans an alert out to several notifiers.
type MultiNotifier []Notifier

func (mn MultiNotifier) Notify(ctx context.Context, alert *database.Alert) error {
	var firstErr error
	for _, n := range mn {
		if err := n.Notify(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AlertRequest describes an alert to create. HostID and ServiceID are
// mutually exclusive; both empty means a system-wide alert.
type AlertRequest struct {
	Kind      database.AlertKind
	Severity  database.Severity
	Message   string
	HostID    string
	ServiceID string
	Details   map[string]interface{}
}

// AlertManager owns alert creation, the time-boxed deduplication check,
// and the mapping from liveness transitions to missed/recovered
// notifications.
type AlertManager struct {
	store       database.Store
	notifier    Notifier
	metrics     *metrics.Collector
	dedupWindow time.Duration
	nowFunc     func() time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewAlertManager(store database.Store, notifier Notifier, collector *metrics.Collector, dedupWindow time.Duration) *AlertManager {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &AlertManager{
		store:       store,
		notifier:    notifier,
		metrics:     collector,
		dedupWindow: dedupWindow,
		nowFunc:     time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// LockSubject serializes evaluation of a single subject. Every
// read-modify-write of a subject's status together with its dedup check
// and alert insert runs under this lock, so two concurrent evaluations
// of the same subject cannot both pass the dedup check.
func (m *AlertManager) LockSubject(key string) func() {
	m.lockMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	return l.Unlock
}

// HostKey and ServiceKey name subject locks.
func HostKey(id string) string    { return "host:" + id }
func ServiceKey(id string) string { return "service:" + id }

// CreateAlert persists a new alert unless an identical unacknowledged
// one was created inside the dedup window, in which case it returns
// (nil, nil). When notify is set the alert is dispatched to the
// notifier; delivery failures are logged and swallowed.
func (m *AlertManager) CreateAlert(ctx context.Context, req AlertRequest, notify bool) (*database.Alert, error) {
	now := m.nowFunc()
	since := now.Add(-m.dedupWindow)

	existing, err := m.store.FindRecentAlert(ctx, req.HostID, req.ServiceID, req.Kind, req.Message, since)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		logrus.WithFields(logrus.Fields{
			"kind":    req.Kind,
			"host":    req.HostID,
			"service": req.ServiceID,
		}).Info("Skipping duplicate alert")
		if m.metrics != nil {
			m.metrics.RecordDeduplicated(req.Kind)
		}
		return nil, nil
	}

	alert := &database.Alert{
		HostID:    req.HostID,
		ServiceID: req.ServiceID,
		Kind:      req.Kind,
		Severity:  req.Severity,
		Message:   req.Message,
		Details:   req.Details,
		CreatedAt: now,
	}

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RecordAlert(alert.Kind, alert.Severity)
	}

	if notify {
		m.dispatch(alert)
	}

	return alert, nil
}

// dispatch is fire-and-forget relative to state transitions: delivery
// failures are logged, never returned, and not retried here.
func (m *AlertManager) dispatch(alert *database.Alert) {
	if m.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	err := m.notifier.Notify(ctx, alert)
	if m.metrics != nil {
		m.metrics.RecordNotification(err)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"kind":     alert.Kind,
			"severity": alert.Severity,
		}).Error("Failed to deliver notification")
	}
}

// ReportMissed records a missed heartbeat: a critical alert plus the
// Up/Unknown -> Down status transition, as one unit. Callers invoke it
// only when the host is currently overdue and not already down.
func (m *AlertManager) ReportMissed(ctx context.Context, host *database.Host) (*database.Alert, error) {
	logrus.WithField("host", host.Name).Warn("Host missed heartbeat")

	details := map[string]interface{}{
		"host_name":          host.Name,
		"expected_frequency": host.ExpectedFrequencySeconds,
		"grace_period":       host.GracePeriodSeconds,
	}
	if host.LastSeen != nil {
		details["last_seen"] = host.LastSeen.Format(time.RFC3339)
	}

	alert, err := m.CreateAlert(ctx, AlertRequest{
		Kind:     database.AlertHeartbeat,
		Severity: database.SeverityCritical,
		Message:  fmt.Sprintf("Host '%s' missed heartbeat", host.Name),
		HostID:   host.ID,
		Details:  details,
	}, true)
	if err != nil {
		return nil, err
	}

	if err := m.store.UpdateHostStatus(ctx, host.ID, database.HostDown, nil); err != nil {
		// Keep alert and status consistent: both or neither.
		m.rollbackAlert(ctx, alert)
		return nil, fmt.Errorf("failed to mark host down: %w", err)
	}
	host.Status = database.HostDown

	if m.metrics != nil {
		m.metrics.UpdateHostStatus(host.Name, database.HostDown)
	}
	return alert, nil
}

// ReportRecovered records a heartbeat recovery: an info alert plus the
// Down -> Up transition. Heartbeat ingestion flips status to Up
// silently; when that path wins the race the next sweep no longer sees
// Down and stays quiet, so at most one of the two paths emits the
// recovery alert and the dedup window bounds any residual overlap.
func (m *AlertManager) ReportRecovered(ctx context.Context, host *database.Host) (*database.Alert, error) {
	logrus.WithField("host", host.Name).Info("Host recovered")

	alert, err := m.CreateAlert(ctx, AlertRequest{
		Kind:     database.AlertHeartbeat,
		Severity: database.SeverityInfo,
		Message:  fmt.Sprintf("Host '%s' recovered", host.Name),
		HostID:   host.ID,
		Details: map[string]interface{}{
			"host_name": host.Name,
		},
	}, true)
	if err != nil {
		return nil, err
	}

	if err := m.store.UpdateHostStatus(ctx, host.ID, database.HostUp, nil); err != nil {
		m.rollbackAlert(ctx, alert)
		return nil, fmt.Errorf("failed to mark host up: %w", err)
	}
	host.Status = database.HostUp

	if m.metrics != nil {
		m.metrics.UpdateHostStatus(host.Name, database.HostUp)
	}
	return alert, nil
}

// RecordContact ingests a live heartbeat: last-seen is always advanced
// and any non-Up status clears to Up without emitting an alert. Recovery
// alerts stay with the periodic sweep so dedup applies uniformly.
func (m *AlertManager) RecordContact(ctx context.Context, hostID, sourceIP string) (*database.Host, *database.Heartbeat, error) {
	unlock := m.LockSubject(HostKey(hostID))
	defer unlock()

	host, err := m.store.GetHost(ctx, hostID)
	if err != nil {
		return nil, nil, err
	}

	now := m.nowFunc()
	hb := &database.Heartbeat{
		HostID:    host.ID,
		Timestamp: now,
		SourceIP:  sourceIP,
	}
	if err := m.store.RecordHeartbeat(ctx, hb); err != nil {
		return nil, nil, fmt.Errorf("failed to record heartbeat: %w", err)
	}

	if host.Status != database.HostUp {
		logrus.WithFields(logrus.Fields{
			"host": host.Name,
			"from": host.Status,
		}).Info("Host status cleared to up on contact")
	}
	if err := m.store.UpdateHostStatus(ctx, host.ID, database.HostUp, &now); err != nil {
		return nil, nil, fmt.Errorf("failed to update host on contact: %w", err)
	}
	host.Status = database.HostUp
	host.LastSeen = &now

	if m.metrics != nil {
		m.metrics.RecordHeartbeat(host.Name)
		m.metrics.UpdateHostStatus(host.Name, database.HostUp)
	}
	return host, hb, nil
}

func (m *AlertManager) rollbackAlert(ctx context.Context, alert *database.Alert) {
	if alert == nil {
		return
	}
	if err := m.store.DeleteAlert(ctx, alert.ID); err != nil {
		logrus.WithError(err).WithField("alert", alert.ID).Error("Failed to roll back alert")
	}
}
