package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/cache"
	"github.com/vientofactory/lawcast-backend/internal/delivery"
	"github.com/vientofactory/lawcast-backend/internal/executor"
	"github.com/vientofactory/lawcast-backend/internal/lifecycle"
	"github.com/vientofactory/lawcast-backend/internal/scheduler"
	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/internal/verify"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// maxActiveEndpoints is the ceiling POST /webhooks enforces before it
// starts rejecting new registrations with a QuotaError.
const maxActiveEndpoints = 100

// Tester is the subset of *delivery.Client a live test delivery needs.
type Tester interface {
	TestDelivery(ctx context.Context, endpointURL string) delivery.Result
}

// Supervisor is the subset of *lifecycle.Controller a batch-processing
// status report needs: per-goroutine stats for the background tasks the
// controller supervises (the HTTP listener, the runtime-config watcher).
type Supervisor interface {
	Snapshot() lifecycle.SupervisorSnapshot
}

// Handler serves the JSON HTTP surface. All dependencies are interfaces so
// handlers can be exercised against fakes.
type Handler struct {
	repo   store.Repository
	cache  cache.Cache
	oracle verify.Oracle
	tester Tester
	exec   *executor.Service
	sched  *scheduler.Service
	sup    Supervisor
	log    logx.Logger
}

func NewHandler(repo store.Repository, c cache.Cache, oracle verify.Oracle, tester Tester, exec *executor.Service, sched *scheduler.Service, sup Supervisor, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{repo: repo, cache: c, oracle: oracle, tester: tester, exec: exec, sched: sched, sup: sup, log: log}
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// CreateWebhook implements POST /webhooks.
func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail("malformed request body"))
		return
	}
	if req.RecaptchaToken == "" {
		writeJSON(w, http.StatusBadRequest, fail("recaptchaToken is required"))
		return
	}
	if err := validateWebhookURL(req.URL); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}

	verified, err := h.oracle.Verify(ctx, req.RecaptchaToken)
	if err != nil {
		h.log.Error("recaptcha verification failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	if !verified {
		writeJSON(w, http.StatusBadRequest, fail("verification token was rejected"))
		return
	}

	existing, err := h.repo.FindByURL(ctx, req.URL)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	if err == nil && existing.Active {
		writeJSON(w, http.StatusConflict, fail("this webhook is already registered"))
		return
	}

	activeCount, err := h.repo.ActiveCount(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	if activeCount >= maxActiveEndpoints {
		writeJSON(w, http.StatusTooManyRequests, fail("active endpoint limit reached"))
		return
	}

	result := h.tester.TestDelivery(ctx, req.URL)
	if !result.Success {
		message := "live test delivery failed"
		if result.Category != "" {
			message = deliveryFailureMessage(result.Category)
		}
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: message, TestResult: result})
		return
	}

	endpoint, err := h.repo.CreateOrReactivate(ctx, req.URL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "webhook registered", Data: endpoint, TestResult: result})
}

// deliveryFailureMessage maps the failure category of a live test delivery
// onto an operator-facing message.
func deliveryFailureMessage(cat delivery.Category) string {
	switch cat {
	case delivery.NotFound:
		return "webhook no longer exists"
	case delivery.Unauthorized, delivery.Forbidden:
		return "webhook is not authorized to receive messages"
	case delivery.RateLimited:
		return "webhook is currently rate limited, try again later"
	case delivery.InvalidWebhook:
		return "url does not point to a valid webhook"
	case delivery.NetworkError:
		return "could not reach the webhook host"
	default:
		return "live test delivery failed"
	}
}

// RecentNotices implements GET /notices/recent.
func (h *Handler) RecentNotices(w http.ResponseWriter, r *http.Request) {
	notices, err := h.cache.Recent(r.Context(), 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	writeJSON(w, http.StatusOK, ok(notices))
}

// Stats implements GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	webhookStats, err := h.repo.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	meta, err := h.cache.Meta(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}

	data := map[string]any{
		"webhooks":        webhookStats,
		"cache":           meta,
		"batchProcessing": h.batchProcessingSnapshot(),
	}
	writeJSON(w, http.StatusOK, ok(data))
}

func (h *Handler) batchProcessingSnapshot() map[string]any {
	snap := map[string]any{}
	if h.exec != nil {
		snap["executor"] = h.exec.Snapshot()
	}
	if h.sched != nil {
		snap["scheduler"] = h.sched.Snapshot()
	}
	if h.sup != nil {
		snap["supervisor"] = h.sup.Snapshot()
	}
	return snap
}

// BatchStatus implements GET /batch/status.
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ok(h.batchProcessingSnapshot()))
}

// Health implements GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	connection := "connected"
	if _, err := h.cache.Meta(ctx); err != nil {
		connection = "disconnected"
	}
	data := map[string]any{
		"timestamp":  time.Now().UTC(),
		"connection": connection,
	}
	writeJSON(w, http.StatusOK, ok(data))
}

// WebhookStatsDetailed implements GET /webhooks/stats/detailed.
func (h *Handler) WebhookStatsDetailed(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	writeJSON(w, http.StatusOK, ok(stats))
}

// systemHealthyThreshold is the efficiency percentage at or above which
// /webhooks/system-health reports "healthy".
const systemHealthyThreshold = 70.0

// WebhookSystemHealth implements GET /webhooks/system-health.
func (h *Handler) WebhookSystemHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, internalError(err))
		return
	}
	efficiency := stats.Efficiency()
	status := "needs_optimization"
	if efficiency >= systemHealthyThreshold {
		status = "healthy"
	}
	data := map[string]any{
		"efficiency": efficiency,
		"stats":      stats,
		"status":     status,
	}
	writeJSON(w, http.StatusOK, ok(data))
}
