package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/cache"
	"github.com/vientofactory/lawcast-backend/internal/delivery"
	"github.com/vientofactory/lawcast-backend/internal/notice"
	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

const validWebhookURL = "https://discord.com/api/webhooks/123456789012345678/" +
	"AbCdEfGhIjKlMnOpQrStUvWxYz0123456789AbCdEfGhIjKlMnOpQrStUvWxYz01"

type fakeRepo struct {
	byURL       map[string]store.Endpoint
	activeCount int
	stats       store.Stats
	created     store.Endpoint
	createErr   error
}

func (f *fakeRepo) CreateOrReactivate(ctx context.Context, url string) (store.Endpoint, error) {
	if f.createErr != nil {
		return store.Endpoint{}, f.createErr
	}
	f.created = store.Endpoint{ID: 1, URL: url, Active: true}
	return f.created, nil
}
func (f *fakeRepo) FindActive(ctx context.Context) ([]store.Endpoint, error) { return nil, nil }
func (f *fakeRepo) FindByID(ctx context.Context, id int64) (store.Endpoint, error) {
	return store.Endpoint{}, store.ErrNotFound
}
func (f *fakeRepo) FindByURL(ctx context.Context, url string) (store.Endpoint, error) {
	if e, ok := f.byURL[url]; ok {
		return e, nil
	}
	return store.Endpoint{}, store.ErrNotFound
}
func (f *fakeRepo) Deactivate(ctx context.Context, id int64) error { return nil }
func (f *fakeRepo) DeletePermanent(ctx context.Context, ids []int64) (int, error) {
	return 0, nil
}
func (f *fakeRepo) CleanupOlderInactive(ctx context.Context, age time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeRepo) DeleteAllInactive(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeRepo) Stats(ctx context.Context) (store.Stats, error)     { return f.stats, nil }
func (f *fakeRepo) BulkCreate(ctx context.Context, urls []string) (store.BulkResult, error) {
	return store.BulkResult{}, nil
}
func (f *fakeRepo) ActiveCount(ctx context.Context) (int, error) { return f.activeCount, nil }
func (f *fakeRepo) Close() error                                 { return nil }

type fakeCache struct {
	recent []notice.Notice
	meta   cache.Meta
	metaErr error
}

func (f *fakeCache) Initialize(ctx context.Context, notices []notice.Notice) error { return nil }
func (f *fakeCache) FindNew(ctx context.Context, crawled []notice.Notice) ([]notice.Notice, error) {
	return crawled, nil
}
func (f *fakeCache) Update(ctx context.Context, crawled []notice.Notice) error { return nil }
func (f *fakeCache) Recent(ctx context.Context, limit int) ([]notice.Notice, error) {
	return f.recent, nil
}
func (f *fakeCache) Clear(ctx context.Context) error { return nil }
func (f *fakeCache) Meta(ctx context.Context) (cache.Meta, error) {
	if f.metaErr != nil {
		return cache.Meta{}, f.metaErr
	}
	return f.meta, nil
}

type fakeOracle struct {
	verified bool
	err      error
}

func (f *fakeOracle) Verify(ctx context.Context, token string) (bool, error) {
	return f.verified, f.err
}

type fakeTester struct {
	result delivery.Result
}

func (f *fakeTester) TestDelivery(ctx context.Context, endpointURL string) delivery.Result {
	return f.result
}

func newTestHandler(repo *fakeRepo, c *fakeCache, oracle *fakeOracle, tester *fakeTester) *Handler {
	return NewHandler(repo, c, oracle, tester, nil, nil, nil, logx.Nop())
}

func postJSON(h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks", bytes.NewReader(b))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestCreateWebhookRejectsMalformedURL(t *testing.T) {
	h := newTestHandler(&fakeRepo{byURL: map[string]store.Endpoint{}}, &fakeCache{}, &fakeOracle{verified: true}, &fakeTester{})
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: "http://example.com", RecaptchaToken: "tok"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateWebhookRejectsMissingToken(t *testing.T) {
	h := newTestHandler(&fakeRepo{byURL: map[string]store.Endpoint{}}, &fakeCache{}, &fakeOracle{verified: true}, &fakeTester{})
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: validWebhookURL})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateWebhookRejectsFailedVerification(t *testing.T) {
	h := newTestHandler(&fakeRepo{byURL: map[string]store.Endpoint{}}, &fakeCache{}, &fakeOracle{verified: false}, &fakeTester{})
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: validWebhookURL, RecaptchaToken: "tok"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateWebhookRejectsDuplicateActive(t *testing.T) {
	repo := &fakeRepo{byURL: map[string]store.Endpoint{validWebhookURL: {ID: 1, URL: validWebhookURL, Active: true}}}
	h := newTestHandler(repo, &fakeCache{}, &fakeOracle{verified: true}, &fakeTester{})
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: validWebhookURL, RecaptchaToken: "tok"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCreateWebhookRejectsAtQuota(t *testing.T) {
	repo := &fakeRepo{byURL: map[string]store.Endpoint{}, activeCount: maxActiveEndpoints}
	h := newTestHandler(repo, &fakeCache{}, &fakeOracle{verified: true}, &fakeTester{})
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: validWebhookURL, RecaptchaToken: "tok"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestCreateWebhookRejectsFailedTestDelivery(t *testing.T) {
	repo := &fakeRepo{byURL: map[string]store.Endpoint{}}
	tester := &fakeTester{result: delivery.Result{Success: false, Category: delivery.NotFound}}
	h := newTestHandler(repo, &fakeCache{}, &fakeOracle{verified: true}, tester)
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: validWebhookURL, RecaptchaToken: "tok"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateWebhookSucceeds(t *testing.T) {
	repo := &fakeRepo{byURL: map[string]store.Endpoint{}}
	tester := &fakeTester{result: delivery.Result{Success: true}}
	h := newTestHandler(repo, &fakeCache{}, &fakeOracle{verified: true}, tester)
	rr := postJSON(h.CreateWebhook, createWebhookRequest{URL: validWebhookURL, RecaptchaToken: "tok"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response")
	}
}

func TestRecentNoticesReturnsCacheContents(t *testing.T) {
	c := &fakeCache{recent: []notice.Notice{{Num: 1, Subject: "a"}, {Num: 2, Subject: "b"}}}
	h := newTestHandler(&fakeRepo{}, c, &fakeOracle{}, &fakeTester{})
	req := httptest.NewRequest(http.MethodGet, "/api/notices/recent", nil)
	rr := httptest.NewRecorder()
	h.RecentNotices(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestWebhookSystemHealthReportsHealthyAboveThreshold(t *testing.T) {
	repo := &fakeRepo{stats: store.Stats{Total: 10, Active: 8}}
	h := newTestHandler(repo, &fakeCache{}, &fakeOracle{}, &fakeTester{})
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/system-health", nil)
	rr := httptest.NewRecorder()
	h.WebhookSystemHealth(rr, req)

	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", resp.Data)
	}
	if data["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %v", data["status"])
	}
}

func TestWebhookSystemHealthReportsNeedsOptimizationBelowThreshold(t *testing.T) {
	repo := &fakeRepo{stats: store.Stats{Total: 10, Active: 2}}
	h := newTestHandler(repo, &fakeCache{}, &fakeOracle{}, &fakeTester{})
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/system-health", nil)
	rr := httptest.NewRecorder()
	h.WebhookSystemHealth(rr, req)

	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := resp.Data.(map[string]any)
	if data["status"] != "needs_optimization" {
		t.Fatalf("expected needs_optimization status, got %v", data["status"])
	}
}

func TestHealthReportsDisconnectedOnCacheError(t *testing.T) {
	c := &fakeCache{metaErr: context.DeadlineExceeded}
	h := newTestHandler(&fakeRepo{}, c, &fakeOracle{}, &fakeTester{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	h.Health(rr, req)

	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := resp.Data.(map[string]any)
	if data["connection"] != "disconnected" {
		t.Fatalf("expected disconnected, got %v", data["connection"])
	}
}
