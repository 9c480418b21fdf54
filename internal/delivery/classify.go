package delivery

import (
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"
)

// discordUnknownWebhookCode is the provider error code Discord returns in
// the JSON body for a webhook that has been deleted server-side, even when
// the HTTP status is not 404.
const discordUnknownWebhookCode = 10015

type providerError struct {
	Code int `json:"code"`
}

// classifyHTTP maps a completed HTTP response onto the failure taxonomy.
// Order matters: it mirrors the priority table in the delivery client
// specification.
func classifyHTTP(status int, body []byte) Category {
	var pe providerError
	_ = json.Unmarshal(body, &pe)

	switch {
	case status == 404 || pe.Code == discordUnknownWebhookCode:
		return NotFound
	case status == 401:
		return Unauthorized
	case status == 403:
		return Forbidden
	case status == 429:
		return RateLimited
	case status >= 400 && status < 500:
		return InvalidWebhook
	default:
		return UnknownError
	}
}

// classifyErr maps a transport-level failure (the request never completed)
// onto the failure taxonomy.
func classifyErr(rawURL string, err error) Category {
	if _, perr := url.ParseRequestURI(rawURL); perr != nil {
		return InvalidWebhook
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetworkError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NetworkError
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return NetworkError
	}
	return UnknownError
}
