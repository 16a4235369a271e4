// internal/monitoring/poller.go - HTTP probing of monitored services
package monitoring

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"watchtower/internal/database"
)

const (
	defaultPollTimeout = 30 * time.Second
	maxProbeBody       = 1 << 20 // pattern matching reads at most 1MB
)

// HTTPPoller probes service endpoints and reports raw outcomes. It
// carries no health state; the hysteresis tracker owns that.
type HTTPPoller struct {
	client *http.Client
}

func NewHTTPPoller() *HTTPPoller {
	return &HTTPPoller{
		client: &http.Client{
			// Per-request timeouts come from the service config.
			Timeout: 0,
		},
	}
}

// Poll performs one probe of the service endpoint. Network errors and
// expectation mismatches both come back as a failed PollResult, not an
// error: an unreachable endpoint is a result, not a poller fault.
func (p *HTTPPoller) Poll(ctx context.Context, svc *database.Service) PollResult {
	timeout := defaultPollTimeout
	if svc.TimeoutSeconds > 0 {
		timeout = time.Duration(svc.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := svc.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, svc.EndpointURL, nil)
	if err != nil {
		return PollResult{Error: fmt.Sprintf("invalid request: %v", err)}
	}
	if err := applyAuth(req, svc); err != nil {
		return PollResult{Error: err.Error()}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return PollResult{ResponseTimeMs: elapsed, Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	result := PollResult{
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
	}

	expected := svc.ExpectedStatusCode
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		result.Error = fmt.Sprintf("unexpected status code %d (want %d)", resp.StatusCode, expected)
		return result
	}

	if svc.ExpectedResponsePattern != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
		if err != nil {
			result.Error = fmt.Sprintf("failed to read response body: %v", err)
			return result
		}
		re, err := regexp.Compile(svc.ExpectedResponsePattern)
		if err != nil {
			result.Error = fmt.Sprintf("invalid response pattern: %v", err)
			return result
		}
		if !re.Match(body) {
			result.Error = fmt.Sprintf("response did not match pattern %q", svc.ExpectedResponsePattern)
			return result
		}
	}

	result.Success = true
	return result
}

func applyAuth(req *http.Request, svc *database.Service) error {
	switch svc.AuthType {
	case "", "none":
		return nil
	case "bearer":
		token := svc.AuthConfig["token"]
		if token == "" {
			return fmt.Errorf("bearer auth configured without token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case "api_key":
		header := svc.AuthConfig["header"]
		if header == "" {
			header = "X-API-Key"
		}
		key := svc.AuthConfig["key"]
		if key == "" {
			return fmt.Errorf("api_key auth configured without key")
		}
		req.Header.Set(header, key)
	case "basic":
		req.SetBasicAuth(svc.AuthConfig["username"], svc.AuthConfig["password"])
	default:
		return fmt.Errorf("unsupported auth type %q", svc.AuthType)
	}
	return nil
}
