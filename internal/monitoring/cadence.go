// internal/monitoring/cadence.go - expected-frequency estimation from cron expressions
package monitoring

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultFrequencySeconds is the fallback cadence when estimation fails.
const DefaultFrequencySeconds = 300

// Standard 5-field cron (minute hour dom month dow).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateCron checks a cron expression without evaluating it.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return nil
}

// EstimateFrequency converts a cron expression into an average interval
// in seconds, measured over the next three occurrences after ref.
//
// Averaging only the two nearest deltas misestimates expressions with
// irregular spacing (month-boundary crons and the like); that is an
// accepted approximation, not exact period detection. On any failure
// the default of 300 seconds is returned together with a
// ErrCadenceEstimation the caller can log.
func EstimateFrequency(expr string, ref time.Time) (int, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return DefaultFrequencySeconds, fmt.Errorf("%w: %v", ErrCadenceEstimation, err)
	}

	first := sched.Next(ref)
	second := sched.Next(first)
	third := sched.Next(second)
	if first.IsZero() || second.IsZero() || third.IsZero() {
		return DefaultFrequencySeconds, fmt.Errorf("%w: no upcoming occurrences for %q", ErrCadenceEstimation, expr)
	}

	avg := (second.Sub(first) + third.Sub(second)) / 2
	seconds := int(avg.Seconds())
	if seconds <= 0 {
		return DefaultFrequencySeconds, fmt.Errorf("%w: non-positive interval for %q", ErrCadenceEstimation, expr)
	}
	return seconds, nil
}
