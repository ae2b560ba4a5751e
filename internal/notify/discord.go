package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// Discord embed strip colors by alert severity.
const (
	colorCritical = 0xE74C3C
	colorHigh     = 0xE67E22
	colorMedium   = 0xF1C40F
	colorDefault  = 0x2ECC71
)

// DiscordSender delivers notifications through a Discord webhook as embeds,
// color-coded by severity.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts the notification as a single embed. Discord returns 204 No
// Content on success.
func (d *DiscordSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(map[string]any{
		"embeds": []discordEmbed{{
			Title:       n.Title,
			Description: n.Body,
			Color:       severityColor(n.Severity),
		}},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func severityColor(severity domain.AlertSeverity) int {
	switch severity {
	case domain.SeverityCritical:
		return colorCritical
	case domain.SeverityHigh:
		return colorHigh
	case domain.SeverityMedium:
		return colorMedium
	default:
		return colorDefault
	}
}
