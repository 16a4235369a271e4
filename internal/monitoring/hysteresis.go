// internal/monitoring/hysteresis.go - consecutive-failure tracking for polled services
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
)

// PollResult is the outcome of a single service poll, as seen by the
// hysteresis tracker.
type PollResult struct {
	Success        bool
	Error          string
	StatusCode     int
	ResponseTimeMs int64
}

// ServiceTracker applies consecutive-failure hysteresis to poll results.
// A single failed probe marks a service degraded; only alert_threshold
// consecutive failures mark it unhealthy, and the critical alert fires
// exactly once, on the crossing.
type ServiceTracker struct {
	store   database.Store
	alerts  *AlertManager
	nowFunc func() time.Time
}

func NewServiceTracker(store database.Store, alerts *AlertManager) *ServiceTracker {
	return &ServiceTracker{
		store:   store,
		alerts:  alerts,
		nowFunc: time.Now,
	}
}

// RecordResult folds one poll result into the service's health state.
// It persists the check row, advances or resets the failure counter,
// derives the status, and emits alerts on the unhealthy crossing and on
// recovery from unhealthy. The service's lock covers the whole update
// so overlapping polls of one service cannot interleave counters.
func (t *ServiceTracker) RecordResult(ctx context.Context, svc *database.Service, result PollResult) error {
	unlock := t.alerts.LockSubject(ServiceKey(svc.ID))
	defer unlock()

	// Re-read under the lock; the cached copy may be stale.
	current, err := t.store.GetService(ctx, svc.ID)
	if err != nil {
		return err
	}

	now := t.nowFunc()
	check := &database.ServiceCheck{
		ServiceID:      current.ID,
		Timestamp:      now,
		StatusCode:     result.StatusCode,
		ResponseTimeMs: result.ResponseTimeMs,
		Error:          result.Error,
	}
	if result.Success {
		check.Status = "success"
	} else {
		check.Status = "failure"
	}
	if err := t.store.RecordServiceCheck(ctx, check); err != nil {
		return fmt.Errorf("failed to record service check: %w", err)
	}

	failures := current.ConsecutiveFailures
	if result.Success {
		failures = 0
	} else {
		failures++
	}

	threshold := current.AlertThreshold
	if threshold <= 0 {
		threshold = 1
	}

	var status database.ServiceStatus
	switch {
	case failures == 0:
		status = database.ServiceHealthy
	case failures >= threshold:
		status = database.ServiceUnhealthy
	default:
		status = database.ServiceDegraded
	}

	wasUnhealthy := current.Status == database.ServiceUnhealthy
	crossed := !wasUnhealthy && status == database.ServiceUnhealthy
	recovered := wasUnhealthy && status == database.ServiceHealthy

	var alert *database.Alert
	if crossed {
		logrus.WithFields(logrus.Fields{
			"service":  current.Name,
			"failures": failures,
		}).Warn("Service crossed failure threshold")

		alert, err = t.alerts.CreateAlert(ctx, AlertRequest{
			Kind:      database.AlertServiceHealth,
			Severity:  database.SeverityCritical,
			Message:   fmt.Sprintf("Service '%s' is unhealthy after %d consecutive failures", current.Name, failures),
			ServiceID: current.ID,
			Details: map[string]interface{}{
				"service_name":         current.Name,
				"endpoint_url":         current.EndpointURL,
				"consecutive_failures": failures,
				"alert_threshold":      threshold,
				"last_error":           result.Error,
			},
		}, true)
		if err != nil {
			return err
		}
	} else if recovered {
		logrus.WithField("service", current.Name).Info("Service recovered")

		alert, err = t.alerts.CreateAlert(ctx, AlertRequest{
			Kind:      database.AlertServiceHealth,
			Severity:  database.SeverityInfo,
			Message:   fmt.Sprintf("Service '%s' recovered", current.Name),
			ServiceID: current.ID,
			Details: map[string]interface{}{
				"service_name": current.Name,
				"endpoint_url": current.EndpointURL,
			},
		}, true)
		if err != nil {
			return err
		}
	}

	if err := t.store.UpdateServiceHealth(ctx, current.ID, status, failures, result.Error, now); err != nil {
		// Keep alert and status consistent: both or neither.
		t.alerts.rollbackAlert(ctx, alert)
		return fmt.Errorf("failed to update service health: %w", err)
	}

	if t.alerts.metrics != nil {
		t.alerts.metrics.UpdateServiceHealth(current.Name, status, failures)
	}
	return nil
}
