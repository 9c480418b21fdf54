package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// senderUsername is the fixed display name every outbound embed is
// attributed to.
const senderUsername = "lawcast"

const maxErrorBodyBytes = 4 << 10

// Client posts notification embeds to Discord-compatible webhook URLs.
type Client struct {
	httpc *http.Client
	log   logx.Logger
}

func New(log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		httpc: &http.Client{Timeout: 10 * time.Second},
		log:   log,
	}
}

type webhookPayload struct {
	Username string          `json:"username"`
	Embeds   []webhookEmbed  `json:"embeds"`
}

type webhookEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Fields      []webhookEmbedField `json:"fields,omitempty"`
}

type webhookEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func toWebhookEmbed(e Embed) webhookEmbed {
	we := webhookEmbed{Title: e.Title, Description: e.Description, URL: e.URL}
	for name, value := range e.Fields {
		we.Fields = append(we.Fields, webhookEmbedField{Name: name, Value: value, Inline: true})
	}
	return we
}

// Send posts embed to endpointURL. It has no error return: every outcome,
// success or failure, is reported in the returned Result.
func (c *Client) Send(ctx context.Context, endpointURL string, embed Embed) Result {
	payload := webhookPayload{Username: senderUsername, Embeds: []webhookEmbed{toWebhookEmbed(embed)}}
	return c.post(ctx, endpointURL, payload)
}

// TestDelivery posts a fixed welcome embed, used to validate a newly
// registered endpoint before it is persisted as active.
func (c *Client) TestDelivery(ctx context.Context, endpointURL string) Result {
	welcome := Embed{
		Title:       "Subscription confirmed",
		Description: "This webhook is now registered to receive new notice alerts.",
	}
	return c.post(ctx, endpointURL, webhookPayload{Username: senderUsername, Embeds: []webhookEmbed{toWebhookEmbed(welcome)}})
}

func (c *Client) post(ctx context.Context, endpointURL string, payload webhookPayload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Category: UnknownError, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		cat := classifyErr(endpointURL, err)
		return Result{Success: false, Category: cat, Error: err.Error(), ShouldDelete: cat.Permanent()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		cat := classifyErr(endpointURL, err)
		c.log.Debug("delivery transport error", logx.String("url", redact(endpointURL)), logx.String("category", string(cat)), logx.Err(err))
		return Result{Success: false, Category: cat, Error: err.Error(), ShouldDelete: cat.Permanent()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Success: true}
	}

	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	cat := classifyHTTP(resp.StatusCode, errBody)
	c.log.Debug("delivery rejected", logx.String("url", redact(endpointURL)), logx.Int("status", resp.StatusCode), logx.String("category", string(cat)))
	return Result{
		Success:      false,
		Category:     cat,
		Error:        string(bytes.TrimSpace(errBody)),
		ShouldDelete: cat.Permanent(),
	}
}

// redact drops the token segment of a webhook URL so it never lands in a
// log line.
func redact(rawURL string) string {
	const marker = "/webhooks/"
	head, rest, ok := strings.Cut(rawURL, marker)
	if !ok {
		return rawURL
	}
	id, _, _ := strings.Cut(rest, "/")
	return head + marker + id + "/***"
}
