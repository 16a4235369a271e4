// internal/notifications/discord.go - Discord webhook delivery with throttling
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
)

// Embed colors per severity.
const (
	colorInfo     = 0x2ecc71 // green
	colorWarning  = 0xf39c12 // orange
	colorCritical = 0xe74c3c // red
)

// DiscordClient posts alerts to a Discord webhook. A sliding-window
// throttle caps how many messages go out per window; alerts beyond the
// cap are dropped with a log line, never queued.
type DiscordClient struct {
	webhookURL string
	username   string
	client     *http.Client

	mu       sync.Mutex
	window   time.Duration
	maxSends int
	sent     []time.Time
	nowFunc  func() time.Time
}

func NewDiscordClient(webhookURL, username string, maxPerWindow int, window time.Duration) *DiscordClient {
	if username == "" {
		username = "Watchtower"
	}
	if maxPerWindow <= 0 {
		maxPerWindow = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &DiscordClient{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: 15 * time.Second},
		window:     window,
		maxSends:   maxPerWindow,
		nowFunc:    time.Now,
	}
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Notify delivers one alert to the webhook.
func (d *DiscordClient) Notify(ctx context.Context, alert *database.Alert) error {
	if d.webhookURL == "" {
		return nil
	}
	if !d.allow() {
		logrus.WithFields(logrus.Fields{
			"kind":    alert.Kind,
			"message": alert.Message,
		}).Warn("Discord notification throttled")
		return nil
	}

	payload := discordPayload{
		Username: d.username,
		Embeds:   []discordEmbed{d.buildEmbed(alert)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}

	logrus.WithField("kind", alert.Kind).Debug("Discord notification sent")
	return nil
}

func (d *DiscordClient) buildEmbed(alert *database.Alert) discordEmbed {
	embed := discordEmbed{
		Title:       titleFor(alert.Severity),
		Description: alert.Message,
		Color:       colorFor(alert.Severity),
		Timestamp:   alert.CreatedAt.UTC().Format(time.RFC3339),
		Fields: []discordEmbedField{
			{Name: "Type", Value: string(alert.Kind), Inline: true},
			{Name: "Severity", Value: string(alert.Severity), Inline: true},
		},
	}
	if name, ok := alert.Details["host_name"].(string); ok && name != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Host", Value: name, Inline: true})
	}
	if name, ok := alert.Details["service_name"].(string); ok && name != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Service", Value: name, Inline: true})
	}
	if errMsg, ok := alert.Details["last_error"].(string); ok && errMsg != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Error", Value: errMsg})
	}
	return embed
}

// allow reports whether another send fits in the current window.
func (d *DiscordClient) allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()
	cutoff := now.Add(-d.window)
	kept := d.sent[:0]
	for _, t := range d.sent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.sent = kept

	if len(d.sent) >= d.maxSends {
		return false
	}
	d.sent = append(d.sent, now)
	return true
}

func colorFor(sev database.Severity) int {
	switch sev {
	case database.SeverityCritical:
		return colorCritical
	case database.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

func titleFor(sev database.Severity) string {
	switch sev {
	case database.SeverityCritical:
		return "🚨 Critical Alert"
	case database.SeverityWarning:
		return "⚠️ Warning"
	default:
		return "ℹ️ Info"
	}
}
