package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/jobs"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/offer"
	"github.com/autoguard/autoguard/internal/store"
)

const testToken = "correct-horse-battery-staple-9921"

type apiFixture struct {
	handler http.Handler
	pages   *store.PageRepo
	page    *model.Page
	rdb     *redis.Client
}

func newAPIFixture(t *testing.T, adminToken string) *apiFixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Bootstrap(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	offers := store.NewOfferRepo(db)
	o, err := offers.Create(ctx, model.Offer{TenantID: 1, Subdomain: "abc123", Status: model.OfferActive})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	pages := store.NewPageRepo(db)
	page, err := pages.Create(ctx, o.ID, model.VariantMoney)
	if err != nil {
		t.Fatalf("create page: %v", err)
	}

	srv := NewServer(ServerConfig{
		AdminToken:     adminToken,
		Status:         StatusDeps{Redis: rdb, Logs: store.NewCloakLogRepo(db)},
		RegeneratePage: HandleRegeneratePage(pages, offer.NewResolver(rdb, offers), jobs.NewEnqueuer(rdb)),
	})
	return &apiFixture{handler: srv.Handler(), pages: pages, page: page, rdb: rdb}
}

func (f *apiFixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzIsPublic(t *testing.T) {
	f := newAPIFixture(t, testToken)
	rr := f.do(http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", rr.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || out["status"] != "ok" {
		t.Fatalf("body = %s err %v", rr.Body.String(), err)
	}
}

func TestAPIAuthRequired(t *testing.T) {
	f := newAPIFixture(t, testToken)

	if rr := f.do(http.MethodGet, "/api/v1/status", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/v1/status", "", "wrong-token"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/v1/status", "", testToken); rr.Code != http.StatusOK {
		t.Fatalf("good token: status = %d, want 200", rr.Code)
	}
}

func TestAPIDisabledWithoutToken(t *testing.T) {
	f := newAPIFixture(t, "")
	rr := f.do(http.MethodGet, "/api/v1/status", "", "anything")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when the admin API is disabled", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "DISABLED") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestStatusReportsQueues(t *testing.T) {
	f := newAPIFixture(t, testToken)
	f.rdb.LPush(context.Background(), cache.JobQueue, "x")

	rr := f.do(http.MethodGet, "/api/v1/status", "", testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out struct {
		JobQueues      jobs.QueueDepths `json:"job_queues"`
		CloakLogsTotal int64            `json:"cloak_logs_total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.JobQueues.Pending != 1 {
		t.Fatalf("pending = %d, want 1", out.JobQueues.Pending)
	}
}

func TestRegenerateUnknownPageIs404(t *testing.T) {
	f := newAPIFixture(t, testToken)
	rr := f.do(http.MethodPost, "/api/v1/pages/999/actions/regenerate", "", testToken)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestRegenerateEnqueuesJob(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t, testToken)

	rr := f.do(http.MethodPost, "/api/v1/pages/1/actions/regenerate",
		`{"action":"scrape","source_url":"https://example.com/lp"}`, testToken)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s, want 202", rr.Code, rr.Body.String())
	}

	raw, err := f.rdb.LPop(ctx, cache.JobQueue).Result()
	if err != nil {
		t.Fatalf("expected queued job: %v", err)
	}
	job, err := jobs.DecodeJob(raw)
	if err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.PageID != f.page.ID || job.Action != model.ActionScrape || job.SourceURL != "https://example.com/lp" {
		t.Fatalf("job = %+v", job)
	}
	if job.Subdomain != "abc123" || job.Variant != model.VariantMoney {
		t.Fatalf("job routing fields = %+v", job)
	}
	if job.JobID == "" {
		t.Fatal("job must carry a tracing id")
	}

	p, err := f.pages.Get(ctx, f.page.ID)
	if err != nil || p.Status != model.PagePending {
		t.Fatalf("page = %+v err %v, want pending", p, err)
	}
}

func TestRegenerateValidatesBody(t *testing.T) {
	f := newAPIFixture(t, testToken)

	// Scrape without a source URL.
	rr := f.do(http.MethodPost, "/api/v1/pages/1/actions/regenerate", `{"action":"scrape"}`, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	// Unknown action.
	rr = f.do(http.MethodPost, "/api/v1/pages/1/actions/regenerate", `{"action":"summon"}`, testToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	// Empty body defaults to ai_generate.
	rr = f.do(http.MethodPost, "/api/v1/pages/1/actions/regenerate", "", testToken)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s, want 202 for default action", rr.Code, rr.Body.String())
	}
}
