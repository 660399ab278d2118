package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/extract"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/refresh"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	"github.com/MrSnakeDoc/pricewatch/internal/store/sqlite"
)

type fakeRegistrar struct {
	err   error
	calls int
	owner string
}

func (f *fakeRegistrar) FetchAndRegister(_ context.Context, rawURL, ownerID string) (*refresh.Registration, error) {
	f.calls++
	f.owner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	title := "Widget"
	return &refresh.Registration{
		PageContent: "<html></html>",
		Structured:  extract.Fields{Title: title, Price: 9.99, Currency: "USD", StockStatus: domain.InStock},
		Product: domain.TrackedProduct{
			ID:          "p-1",
			URL:         rawURL,
			Title:       &title,
			StockStatus: domain.InStock,
			Latest:      domain.PricePoint{Price: 9.99, Currency: "USD"},
		},
	}, nil
}

type fakeProvider struct {
	name    string
	models  []string
	err     error
	lastKey string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ListModels(_ context.Context, apiKey string) ([]string, error) {
	f.lastKey = apiKey
	return f.models, f.err
}

func (f *fakeProvider) Extract(context.Context, string, string, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeProvider) TestConnection(context.Context, string, string) error { return f.err }

type fakeJournal struct {
	last     *domain.SweepReport
	recent   []domain.SweepReport
	failures map[string]domain.SweepFailure
}

func (f *fakeJournal) LastSweep(context.Context) (*domain.SweepReport, error) { return f.last, nil }
func (f *fakeJournal) Ping(context.Context) error                            { return nil }

func (f *fakeJournal) RecentSweeps(_ context.Context, n int64) ([]domain.SweepReport, error) {
	if int64(len(f.recent)) > n {
		return f.recent[:n], nil
	}
	return f.recent, nil
}

func (f *fakeJournal) LastFailure(_ context.Context, productID string) (*domain.SweepFailure, error) {
	fl, ok := f.failures[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &fl, nil
}

type fixture struct {
	deps      deps.Deps
	store     *sqlite.Store
	registrar *fakeRegistrar
	provider  *fakeProvider
	handler   http.Handler
}

func newFixture(t *testing.T, tweak func(*deps.Deps)) *fixture {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:", sqlite.Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:     s,
		registrar: &fakeRegistrar{},
		provider:  &fakeProvider{name: "gemini", models: []string{"gemini-2.5-flash"}},
	}
	f.deps = deps.Deps{
		Logger:          logger.Nop(),
		StartTime:       time.Now(),
		Version:         "test",
		Store:           s,
		Registrar:       f.registrar,
		Providers:       extract.NewRegistry(f.provider),
		DefaultProvider: "gemini",
		RefreshTrigger:  make(chan struct{}, 1),
		FetchBurst:      100,
		FetchRefillPerM: 100,
	}
	if tweak != nil {
		tweak(&f.deps)
	}
	f.handler = newRouter(logger.Nop(), withDefaults(f.deps))
	return f
}

func (f *fixture) do(t *testing.T, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(mw.OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func seed(t *testing.T, s *sqlite.Store, owner, url string, price float64) string {
	t.Helper()
	p, err := s.ApplyRefresh(context.Background(), domain.Refresh{
		OwnerID:     owner,
		URL:         url,
		Title:       "Widget",
		StockStatus: domain.InStock,
		Price:       price,
		Currency:    "USD",
		CheckedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ApplyRefresh() error = %v", err)
	}
	return p.ID
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestReadyz(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	_ = f.store.Close()
	if rec := f.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after close = %d, want 503", rec.Code)
	}
}

func TestOperationalEndpointsHonourCIDRs(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })

	// httptest requests come from 192.0.2.1.
	for _, path := range []string{"/readyz", "/infra"} {
		if rec := f.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusForbidden {
			t.Errorf("%s status = %d, want 403", path, rec.Code)
		}
	}
	if rec := f.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestInfra(t *testing.T) {
	t.Run("without journal", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(t, http.MethodGet, "/infra", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body := decode[infraBody](t, rec)
		if body.Mode != "operational" {
			t.Errorf("mode = %q, want operational", body.Mode)
		}
		if body.Components["redis"].Mode != "disabled" {
			t.Errorf("redis = %+v, want disabled", body.Components["redis"])
		}
		if body.LastSweep != nil {
			t.Errorf("last_sweep = %+v, want nil", body.LastSweep)
		}
	})

	t.Run("with journal", func(t *testing.T) {
		j := &fakeJournal{
			last: &domain.SweepReport{Trigger: "interval", Total: 3, Succeeded: 2, Failed: 1},
			recent: []domain.SweepReport{
				{Trigger: "interval", Total: 3, Succeeded: 2, Failed: 1},
				{Trigger: "manual", Total: 3, Succeeded: 3},
				{Trigger: "interval", Total: 2, Succeeded: 2},
				{Trigger: "interval", Total: 2, Succeeded: 1, Failed: 1},
				{Trigger: "startup", Total: 1, Succeeded: 1},
				{Trigger: "interval", Total: 1, Succeeded: 1},
			},
		}
		f := newFixture(t, func(d *deps.Deps) {
			d.Journal = j
			d.SweepRunning = func() bool { return true }
		})
		body := decode[infraBody](t, f.do(t, http.MethodGet, "/infra", "", ""))
		if !body.SweepRunning {
			t.Error("sweep_running = false, want true")
		}
		if body.LastSweep == nil || body.LastSweep.Failed != 1 {
			t.Errorf("last_sweep = %+v", body.LastSweep)
		}
		if len(body.RecentSweeps) != 5 {
			t.Fatalf("recent_sweeps len = %d, want 5", len(body.RecentSweeps))
		}
		if body.RecentSweeps[1].Trigger != "manual" {
			t.Errorf("recent_sweeps[1].trigger = %q, want manual", body.RecentSweeps[1].Trigger)
		}
	})
}

type infraBody struct {
	Mode       string `json:"mode"`
	Components map[string]struct {
		OK   bool   `json:"ok"`
		Mode string `json:"mode"`
	} `json:"components"`
	SweepRunning bool                `json:"sweep_running"`
	LastSweep    *domain.SweepReport  `json:"last_sweep"`
	RecentSweeps []domain.SweepReport `json:"recent_sweeps"`
}

func TestAPIRequiresOwner(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/products"},
		{http.MethodPost, "/api/products/fetch"},
		{http.MethodPost, "/api/products/refresh"},
		{http.MethodDelete, "/api/products/x"},
		{http.MethodGet, "/api/providers/config"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			if rec := f.do(t, tc.method, tc.path, "", ""); rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAPIEnforcesHost(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) { d.AllowedHosts = []string{"prices.example.com"} })

	// httptest requests target example.com.
	if rec := f.do(t, http.MethodGet, "/api/products", "alice", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestListProducts(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/products", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("empty list body = %q, want []", got)
	}

	seed(t, f.store, "alice", "https://shop.test/a", 10)
	seed(t, f.store, "bob", "https://shop.test/b", 20)

	views := decode[[]domain.TrackedProduct](t, f.do(t, http.MethodGet, "/api/products", "alice", ""))
	if len(views) != 1 || views[0].URL != "https://shop.test/a" {
		t.Fatalf("alice views = %+v", views)
	}
	if views[0].Latest.Price != 10 {
		t.Errorf("latest price = %v, want 10", views[0].Latest.Price)
	}
}

func TestFetchProduct(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusOK},
		{"invalid url", fmt.Errorf("%w: missing host", domain.ErrInvalidURL), http.StatusBadRequest},
		{"render failure", &refresh.StageError{Stage: refresh.StageFetching, Err: errors.New("timeout")}, http.StatusUnprocessableEntity},
		{"extraction failure", &refresh.StageError{Stage: refresh.StageExtracting, Err: extract.ErrMalformedExtraction}, http.StatusBadGateway},
		{"no provider", &refresh.StageError{Stage: refresh.StageExtracting, Err: extract.ErrNoProviderConfigured}, http.StatusBadGateway},
		{"store failure", &refresh.StageError{Stage: refresh.StagePersisting, Err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.registrar.err = tc.err

			rec := f.do(t, http.MethodPost, "/api/products/fetch", "alice", `{"url":"https://shop.test/w"}`)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			if f.registrar.owner != "alice" {
				t.Errorf("owner = %q, want alice", f.registrar.owner)
			}
			if tc.err != nil {
				return
			}
			reg := decode[refresh.Registration](t, rec)
			if reg.Product.ID != "p-1" || reg.Structured.Currency != "USD" || reg.PageContent == "" {
				t.Errorf("registration = %+v", reg)
			}
		})
	}
}

func TestFetchProductRejectsBadBodies(t *testing.T) {
	f := newFixture(t, nil)
	for _, body := range []string{`not json`, `{"url":""}`, `{"link":"https://shop.test"}`} {
		rec := f.do(t, http.MethodPost, "/api/products/fetch", "alice", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
	if f.registrar.calls != 0 {
		t.Errorf("registrar called %d times, want 0", f.registrar.calls)
	}
}

func TestFetchProductIsRateLimited(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) {
		d.FetchBurst = 1
		d.FetchRefillPerM = 1
	})
	body := `{"url":"https://shop.test/w"}`

	if rec := f.do(t, http.MethodPost, "/api/products/fetch", "alice", body); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/products/fetch", "alice", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	// Buckets are per owner.
	if rec := f.do(t, http.MethodPost, "/api/products/fetch", "bob", body); rec.Code != http.StatusOK {
		t.Fatalf("other owner status = %d, want 200", rec.Code)
	}
}

func TestRefreshProductsCoalesces(t *testing.T) {
	f := newFixture(t, nil)

	first := f.do(t, http.MethodPost, "/api/products/refresh", "alice", "")
	second := f.do(t, http.MethodPost, "/api/products/refresh", "alice", "")
	for _, rec := range []*httptest.ResponseRecorder{first, second} {
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
	}

	if decode[map[string]any](t, first)["coalesced"] != false {
		t.Error("first request should not be coalesced")
	}
	if decode[map[string]any](t, second)["coalesced"] != true {
		t.Error("second request should be coalesced")
	}
	if len(f.deps.RefreshTrigger) != 1 {
		t.Errorf("pending triggers = %d, want 1", len(f.deps.RefreshTrigger))
	}
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t, nil)
	id := seed(t, f.store, "alice", "https://shop.test/a", 10)

	if rec := f.do(t, http.MethodDelete, "/api/products/"+id, "bob", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/products/"+id, "alice", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/products/"+id, "alice", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestProductFailure(t *testing.T) {
	j := &fakeJournal{failures: map[string]domain.SweepFailure{}}
	f := newFixture(t, func(d *deps.Deps) { d.Journal = j })
	failing := seed(t, f.store, "alice", "https://shop.test/a", 10)
	healthy := seed(t, f.store, "alice", "https://shop.test/b", 12)
	j.failures[failing] = domain.SweepFailure{
		ProductID: failing,
		URL:       "https://shop.test/a",
		Stage:     "fetching",
		Reason:    "navigation timeout",
	}

	tests := []struct {
		name     string
		owner    string
		id       string
		wantCode int
	}{
		{"recorded failure", "alice", failing, http.StatusOK},
		{"no failure recorded", "alice", healthy, http.StatusNotFound},
		{"foreign owner", "bob", failing, http.StatusNotFound},
		{"unknown product", "alice", "does-not-exist", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/products/"+tt.id+"/failure", tt.owner, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			got := decode[domain.SweepFailure](t, rec)
			if got.Stage != "fetching" || got.ProductID != failing {
				t.Errorf("failure = %+v", got)
			}
		})
	}

	t.Run("without journal", func(t *testing.T) {
		bare := newFixture(t, nil)
		id := seed(t, bare.store, "alice", "https://shop.test/a", 10)
		if rec := bare.do(t, http.MethodGet, "/api/products/"+id+"/failure", "alice", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestAvailableProviders(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/providers/available", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[struct {
		Providers []string `json:"providers"`
		Default   string   `json:"default"`
	}](t, rec)
	if len(body.Providers) != 1 || body.Providers[0] != "gemini" || body.Default != "gemini" {
		t.Errorf("body = %+v", body)
	}
}

func TestProviderConfigLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(t, http.MethodGet, "/api/providers/config", "alice", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("initial status = %d, want 404", rec.Code)
	}

	bad := f.do(t, http.MethodPost, "/api/providers/config", "alice",
		`{"provider_name":"nope","api_key":"k","model_name":"m"}`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider status = %d, want 400", bad.Code)
	}

	missing := f.do(t, http.MethodPost, "/api/providers/config", "alice",
		`{"provider_name":"gemini","api_key":"","model_name":"m"}`)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("missing key status = %d, want 400", missing.Code)
	}

	saved := f.do(t, http.MethodPost, "/api/providers/config", "alice",
		`{"provider_name":"Gemini","api_key":"secret-1234","model_name":"gemini-2.5-flash"}`)
	if saved.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200 (%s)", saved.Code, saved.Body.String())
	}
	if strings.Contains(saved.Body.String(), "secret") {
		t.Fatalf("response leaks the key: %s", saved.Body.String())
	}

	got := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/providers/config", "alice", ""))
	if got["provider_name"] != "gemini" || got["api_key_masked"] != "****1234" || got["is_active"] != true {
		t.Errorf("config = %v", got)
	}

	if rec := f.do(t, http.MethodGet, "/api/providers/config", "bob", ""); rec.Code != http.StatusNotFound {
		t.Errorf("other owner status = %d, want 404", rec.Code)
	}
}

func TestProviderModels(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/providers/gemini/models?api_key=k1", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.provider.lastKey != "k1" {
		t.Errorf("key = %q, want k1", f.provider.lastKey)
	}

	if rec := f.do(t, http.MethodGet, "/api/providers/unknown/models?api_key=k1", "alice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown provider status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/providers/gemini/models", "alice", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("no key status = %d, want 400", rec.Code)
	}

	_, err := f.store.SaveProviderConfig(context.Background(), domain.ProviderConfig{
		OwnerID: "alice", ProviderName: "gemini", APIKey: "stored", ModelName: "m",
	})
	if err != nil {
		t.Fatalf("SaveProviderConfig() error = %v", err)
	}
	if rec := f.do(t, http.MethodGet, "/api/providers/gemini/models", "alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("stored key status = %d, want 200", rec.Code)
	}
	if f.provider.lastKey != "stored" {
		t.Errorf("key = %q, want stored", f.provider.lastKey)
	}

	f.provider.err = errors.New("401 invalid key")
	if rec := f.do(t, http.MethodGet, "/api/providers/gemini/models?api_key=bad", "alice", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("provider failure status = %d, want 502", rec.Code)
	}
}

func TestTestProvider(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"provider_name":"gemini","api_key":"k","model_name":"gemini-2.5-flash"}`

	ok := decode[map[string]string](t, f.do(t, http.MethodPost, "/api/providers/test", "alice", body))
	if ok["status"] != "success" {
		t.Errorf("result = %v, want success", ok)
	}

	f.provider.err = errors.New("quota exceeded")
	rec := f.do(t, http.MethodPost, "/api/providers/test", "alice", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	failed := decode[map[string]string](t, rec)
	if failed["status"] != "error" || !strings.Contains(failed["message"], "quota") {
		t.Errorf("result = %v", failed)
	}

	unknown := f.do(t, http.MethodPost, "/api/providers/test", "alice",
		`{"provider_name":"nope","api_key":"k","model_name":"m"}`)
	if unknown.Code != http.StatusBadRequest {
		t.Errorf("unknown provider status = %d, want 400", unknown.Code)
	}
}
