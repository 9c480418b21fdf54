package delivery

// Category is the closed failure taxonomy classifyHTTP and classifyErr map
// every outcome onto. Anything not explicitly matched is UNKNOWN_ERROR, which is treated
// as non-permanent.
type Category string

const (
	Success       Category = ""
	NotFound      Category = "NOT_FOUND"
	Unauthorized  Category = "UNAUTHORIZED"
	Forbidden     Category = "FORBIDDEN"
	RateLimited   Category = "RATE_LIMITED"
	NetworkError  Category = "NETWORK_ERROR"
	InvalidWebhook Category = "INVALID_WEBHOOK"
	UnknownError  Category = "UNKNOWN_ERROR"
)

// Permanent reports whether a failure category indicates the endpoint is
// structurally invalid and should never be retried.
func (c Category) Permanent() bool {
	switch c {
	case NotFound, Unauthorized, Forbidden, InvalidWebhook:
		return true
	default:
		return false
	}
}

// Result is the outcome of one send or test-delivery attempt.
type Result struct {
	Success      bool
	Category     Category
	Error        string
	ShouldDelete bool
}

// Embed is the outbound notification payload posted to a webhook.
type Embed struct {
	Title       string
	Description string
	URL         string
	Fields      map[string]string
}
