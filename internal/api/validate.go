package api

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const maxWebhookURLLength = 500

var (
	discordHostPattern = regexp.MustCompile(`^(canary\.|ptb\.)?discord(app)?\.com$`)
	snowflakePattern   = regexp.MustCompile(`^[0-9]{17,20}$`)
	tokenPattern       = regexp.MustCompile(`^[A-Za-z0-9_-]{64,68}$`)
)

// validateWebhookURL enforces the discord-compatible webhook shape: https
// scheme, a discord.com-family host, a bounded overall length, and a path
// of the form /api/webhooks/{snowflake}/{token}[/...].
func validateWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	if len(raw) > maxWebhookURLLength {
		return fmt.Errorf("url exceeds %d characters", maxWebhookURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url is not well formed")
	}
	if u.Scheme != "https" {
		return fmt.Errorf("url must use https")
	}
	if !discordHostPattern.MatchString(strings.ToLower(u.Host)) {
		return fmt.Errorf("url host is not a recognized webhook host")
	}

	parts := strings.Split(u.Path, "/")
	if len(parts) < 5 {
		return fmt.Errorf("url path is malformed")
	}
	// parts[0] is empty (path starts with "/"); parts[1]="api", [2]="webhooks".
	if parts[1] != "api" || parts[2] != "webhooks" {
		return fmt.Errorf("url path is malformed")
	}
	if !snowflakePattern.MatchString(parts[3]) {
		return fmt.Errorf("url webhook id is malformed")
	}
	if !tokenPattern.MatchString(parts[4]) {
		return fmt.Errorf("url webhook token is malformed")
	}
	return nil
}
