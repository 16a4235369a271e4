// internal/monitoring/liveness.go - overdue detection for push-heartbeat hosts
package monitoring

import (
	"time"

	"watchtower/internal/database"
)

// LivenessEvaluator decides whether a host's silence exceeds its
// expected cadence plus grace period under its schedule's rules.
type LivenessEvaluator struct {
	schedule *ScheduleEvaluator
}

func NewLivenessEvaluator(schedule *ScheduleEvaluator) *LivenessEvaluator {
	return &LivenessEvaluator{schedule: schedule}
}

// IsOverdue reports whether host missed its expected heartbeat at ref.
//
// For windowed schedules a host is never overdue outside its monitoring
// window, and when its last contact predates the current window the
// clock starts at the window opening: the host gets a full
// frequency+grace allowance from window start before it can be declared
// overdue, while a host that never reports during the window is still
// caught.
func (l *LivenessEvaluator) IsOverdue(host *database.Host, ref time.Time) bool {
	if host.LastSeen == nil {
		return true
	}

	threshold := time.Duration(host.ExpectedFrequencySeconds+host.GracePeriodSeconds) * time.Second

	switch host.ScheduleType {
	case database.ScheduleBusinessHours, database.ScheduleCustom:
		window := l.schedule.Evaluate(host.ScheduleType, host.Window, ref)
		if !window.Inside {
			return false
		}
		if window.Start != nil && host.LastSeen.Before(*window.Start) {
			return ref.Sub(*window.Start) > threshold
		}
		return ref.Sub(*host.LastSeen) > threshold
	default:
		// Always, plus unknown types for safety.
		return ref.Sub(*host.LastSeen) > threshold
	}
}
