// internal/monitoring/upstream.go - outbound heartbeat to an external monitoring service
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// UpstreamPinger reports this process's own liveness to an external
// monitoring service (healthchecks.io style: a GET against a per-check
// URL counts as a heartbeat). Delivery status is logged edge-triggered:
// one line when delivery starts failing, one when it resumes.
type UpstreamPinger struct {
	url    string
	client *http.Client

	lastStatus string
}

const (
	upstreamStatusSuccess = "success"
	upstreamStatusTimeout = "timeout"
	upstreamStatusError   = "error"
)

func NewUpstreamPinger(url string, timeout time.Duration) *UpstreamPinger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UpstreamPinger{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Ping sends one heartbeat. The returned error reflects the current
// attempt; callers log it and keep ticking.
func (p *UpstreamPinger) Ping(ctx context.Context) error {
	err := p.send(ctx)

	status := upstreamStatusSuccess
	if err != nil {
		status = upstreamStatusError
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			status = upstreamStatusTimeout
		}
	}

	if status != p.lastStatus {
		switch status {
		case upstreamStatusSuccess:
			logrus.WithField("url", p.url).Info("Upstream heartbeat delivery healthy")
		default:
			logrus.WithError(err).WithFields(logrus.Fields{
				"url":    p.url,
				"status": status,
			}).Warn("Upstream heartbeat delivery failing")
		}
	}
	p.lastStatus = status
	return err
}

func (p *UpstreamPinger) send(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build upstream request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream heartbeat request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}
	return nil
}
