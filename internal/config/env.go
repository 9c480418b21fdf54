package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadEnv reads the fixed startup configuration from the environment,
// applying the defaults named in the external interface (PORT 3001,
// CRON_TIMEZONE Asia/Seoul).
func LoadEnv() (Env, error) {
	e := Env{
		Port:               3001,
		NodeEnv:            getenv("NODE_ENV", "development"),
		DatabasePath:       getenv("DATABASE_PATH", "./data/lawcast.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		RedisKeyPrefix:     getenv("REDIS_KEY_PREFIX", "lawcast:"),
		RecaptchaSecretKey: os.Getenv("RECAPTCHA_SECRET_KEY"),
		CronTimezone:       getenv("CRON_TIMEZONE", "Asia/Seoul"),
		AlertWebhookURL:    os.Getenv("ALERT_WEBHOOK_URL"),
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Env{}, fmt.Errorf("config: invalid PORT %q: %w", raw, err)
		}
		e.Port = port
	}

	if raw := os.Getenv("FRONTEND_URL"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				e.FrontendOrigins = append(e.FrontendOrigins, part)
			}
		}
	}

	return e, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
