// Package api exposes the JSON HTTP surface: webhook registration, notice
// and stats reads, and health/batch introspection.
package api

// Response is the envelope every handler writes.
type Response struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
	Details    any    `json:"details,omitempty"`
	Errors     any    `json:"errors,omitempty"`
	TestResult any    `json:"testResult,omitempty"`
	Error      string `json:"error,omitempty"`
}

func ok(data any) Response {
	return Response{Success: true, Data: data}
}

func okMessage(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}

func fail(message string) Response {
	return Response{Success: false, Message: message}
}

func failDetails(message string, details any) Response {
	return Response{Success: false, Message: message, Details: details}
}

func internalError(err error) Response {
	return Response{Success: false, Message: "internal error", Error: err.Error()}
}

// createWebhookRequest is the POST /webhooks body.
type createWebhookRequest struct {
	URL            string `json:"url"`
	RecaptchaToken string `json:"recaptchaToken"`
}
