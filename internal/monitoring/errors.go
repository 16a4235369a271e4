// internal/monitoring/errors.go
package monitoring

import "errors"

var (
	// ErrInvalidCron marks a cron expression the parser rejected.
	// Surfaced to the API layer as a client error.
	ErrInvalidCron = errors.New("invalid cron expression")

	// ErrCadenceEstimation marks a non-fatal frequency estimation
	// failure; callers fall back to the default frequency and log it.
	ErrCadenceEstimation = errors.New("cadence estimation failed")
)
