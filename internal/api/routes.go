package api

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts every handler under /api.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks", h.CreateWebhook)
		r.Get("/notices/recent", h.RecentNotices)
		r.Get("/stats", h.Stats)
		r.Get("/batch/status", h.BatchStatus)
		r.Get("/health", h.Health)
		r.Get("/webhooks/stats/detailed", h.WebhookStatsDetailed)
		r.Get("/webhooks/system-health", h.WebhookSystemHealth)
	})
}
