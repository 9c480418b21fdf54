// Package verify is the human-verification oracle: a boolean check of a
// challenge token against an external verifier, treated as out of scope
// beyond its interface.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// Oracle validates a human-verification token.
type Oracle interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// RecaptchaOracle validates against Google's reCAPTCHA siteverify endpoint.
type RecaptchaOracle struct {
	secret string
	client *http.Client
	log    logx.Logger
}

func NewRecaptchaOracle(secret string, log logx.Logger) *RecaptchaOracle {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RecaptchaOracle{secret: secret, client: &http.Client{Timeout: 5 * time.Second}, log: log}
}

type siteverifyResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"error-codes"`
}

func (o *RecaptchaOracle) Verify(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	form := url.Values{"secret": {o.secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://www.google.com/recaptcha/api/siteverify", strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	defer resp.Body.Close()

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("verify: decode response: %w", err)
	}
	if !body.Success {
		o.log.Debug("recaptcha rejected", logx.Any("errors", body.Errors))
	}
	return body.Success, nil
}
