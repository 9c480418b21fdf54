// Package alert adapts the notification delivery client into an operator
// alert sink: warn/error log lines above a rate-limited threshold get
// mirrored to a Discord-compatible webhook, the same transport used for
// subscriber notices.
package alert

import (
	"context"
	"fmt"

	"github.com/vientofactory/lawcast-backend/internal/delivery"
)

// Sender is the subset of *delivery.Client an alert sink depends on.
type Sender interface {
	Send(ctx context.Context, endpointURL string, embed delivery.Embed) delivery.Result
}

// DiscordSink implements logx.AlertSink without pkg/logx importing the
// delivery package, avoiding an import cycle between the two.
type DiscordSink struct {
	webhookURL string
	client     Sender
}

func NewDiscordSink(webhookURL string, client Sender) *DiscordSink {
	return &DiscordSink{webhookURL: webhookURL, client: client}
}

func (d *DiscordSink) SendAlert(ctx context.Context, message string) error {
	if d.webhookURL == "" {
		return nil
	}
	result := d.client.Send(ctx, d.webhookURL, delivery.Embed{
		Title:       "lawcast-backend alert",
		Description: message,
	})
	if !result.Success {
		return fmt.Errorf("alert: %s: %s", result.Category, result.Error)
	}
	return nil
}
