// internal/monitoring/internet.go - upstream connectivity watchdog
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
)

// InternetWatchdog probes a set of well-known endpoints and raises an
// alert when all of them are unreachable. Alerts are edge-triggered:
// one on loss of connectivity, one on restoration with the outage
// duration attached.
type InternetWatchdog struct {
	alerts    *AlertManager
	client    *http.Client
	checkURLs []string
	nowFunc   func() time.Time

	wasDown   bool
	downSince time.Time
}

func NewInternetWatchdog(alerts *AlertManager, checkURLs []string, timeout time.Duration) *InternetWatchdog {
	if len(checkURLs) == 0 {
		checkURLs = []string{
			"https://www.google.com",
			"https://1.1.1.1",
			"https://www.cloudflare.com",
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InternetWatchdog{
		alerts:    alerts,
		client:    &http.Client{Timeout: timeout},
		checkURLs: checkURLs,
		nowFunc:   time.Now,
	}
}

// Check probes the configured endpoints and emits transition alerts.
// Connectivity counts as up if any single endpoint answers.
func (w *InternetWatchdog) Check(ctx context.Context) error {
	up := false
	for _, url := range w.checkURLs {
		if w.probe(ctx, url) {
			up = true
			break
		}
	}

	now := w.nowFunc()
	switch {
	case !up && !w.wasDown:
		w.wasDown = true
		w.downSince = now
		logrus.Warn("Internet connectivity lost")

		_, err := w.alerts.CreateAlert(ctx, AlertRequest{
			Kind:     database.AlertInternet,
			Severity: database.SeverityCritical,
			Message:  "Internet connectivity lost",
			Details: map[string]interface{}{
				"checked_urls": w.checkURLs,
			},
		}, true)
		return err

	case up && w.wasDown:
		downtime := now.Sub(w.downSince)
		w.wasDown = false
		logrus.WithField("downtime", downtime.String()).Info("Internet connectivity restored")

		_, err := w.alerts.CreateAlert(ctx, AlertRequest{
			Kind:     database.AlertInternet,
			Severity: database.SeverityInfo,
			Message:  fmt.Sprintf("Internet connectivity restored after %s", downtime.Round(time.Second)),
			Details: map[string]interface{}{
				"downtime_seconds": int(downtime.Seconds()),
			},
		}, true)
		return err
	}
	return nil
}

func (w *InternetWatchdog) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
