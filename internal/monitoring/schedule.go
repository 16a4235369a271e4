// internal/monitoring/schedule.go - monitoring window evaluation
package monitoring

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
)

// Window is the verdict of a schedule evaluation at a reference instant.
// Start is the instant the current window opened; nil when the schedule
// has no window concept or the start could not be resolved.
type Window struct {
	Inside bool
	Start  *time.Time
}

// ScheduleEvaluator resolves per-host monitoring windows. Hosts without
// their own window configuration use the service-wide default.
type ScheduleEvaluator struct {
	defaults database.WindowConfig
}

func NewScheduleEvaluator(defaults database.WindowConfig) *ScheduleEvaluator {
	return &ScheduleEvaluator{defaults: defaults}
}

// Evaluate reports whether monitoring is permitted at ref under the
// given schedule. Unrecognized schedule types and unresolvable window
// configurations fail open: monitoring never silently stops.
func (e *ScheduleEvaluator) Evaluate(scheduleType database.ScheduleType, cfg *database.WindowConfig, ref time.Time) Window {
	switch scheduleType {
	case database.ScheduleAlways, database.ScheduleCustom:
		// Custom window strategies are not implemented yet and behave
		// as continuous monitoring.
		return Window{Inside: true}
	case database.ScheduleBusinessHours:
		return e.evaluateBusinessHours(cfg, ref)
	default:
		logrus.WithField("schedule_type", scheduleType).Warn("Unrecognized schedule type, monitoring continuously")
		return Window{Inside: true}
	}
}

func (e *ScheduleEvaluator) evaluateBusinessHours(cfg *database.WindowConfig, ref time.Time) Window {
	window := e.defaults
	if cfg != nil {
		window = *cfg
	}

	loc, err := time.LoadLocation(window.Timezone)
	if err != nil {
		logrus.WithError(err).WithField("timezone", window.Timezone).Warn("Invalid window timezone, monitoring continuously")
		return Window{Inside: true}
	}

	startHour, startMin, err := parseClock(window.StartTime)
	if err != nil {
		logrus.WithError(err).WithField("start_time", window.StartTime).Warn("Invalid window start time, monitoring continuously")
		return Window{Inside: true}
	}
	endHour, endMin, err := parseClock(window.EndTime)
	if err != nil {
		logrus.WithError(err).WithField("end_time", window.EndTime).Warn("Invalid window end time, monitoring continuously")
		return Window{Inside: true}
	}

	local := ref.In(loc)
	if !weekdayActive(local, window.Weekdays) {
		return Window{Inside: false}
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	startMinute := startHour*60 + startMin
	endMinute := endHour*60 + endMin

	var inside bool
	if startMinute <= endMinute {
		inside = minuteOfDay >= startMinute && minuteOfDay <= endMinute
	} else {
		// Overnight range, e.g. 22:00-06:00.
		inside = minuteOfDay >= startMinute || minuteOfDay <= endMinute
	}
	if !inside {
		return Window{Inside: false}
	}

	start := windowStart(local, startHour, startMin, window.Weekdays, loc)
	return Window{Inside: true, Start: start}
}

// windowStart finds the start-time instant on the most recent active day
// at or before the local reference date: today if today's start has
// already passed and today is active, otherwise the closest earlier
// active day.
func windowStart(local time.Time, startHour, startMin int, weekdays []int, loc *time.Location) *time.Time {
	for back := 0; back < 8; back++ {
		day := local.AddDate(0, 0, -back)
		if !weekdayActive(day, weekdays) {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), startHour, startMin, 0, 0, loc)
		if !start.After(local) {
			return &start
		}
	}
	return nil
}

func weekdayActive(t time.Time, weekdays []int) bool {
	iso := int(t.Weekday())
	if iso == 0 {
		iso = 7 // Sunday
	}
	for _, d := range weekdays {
		if d == iso {
			return true
		}
	}
	return false
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour in %q: %w", s, err)
	}
	minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock value out of range: %q", s)
	}
	return hour, minute, nil
}
