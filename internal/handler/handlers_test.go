package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"truemarket-api/internal/cache"
	"truemarket-api/internal/clock"
	"truemarket-api/internal/handler"
	"truemarket-api/internal/middleware"
	"truemarket-api/internal/repository"
	"truemarket-api/internal/router"
	"truemarket-api/internal/service"

	"github.com/shopspring/decimal"
)

// stubFeed serves one fixed BRL rate and can be toggled into failure.
type stubFeed struct {
	mu   sync.Mutex
	down bool
}

func (f *stubFeed) FetchUSDRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return decimal.Zero, errors.New("connection refused")
	}
	if currency != "BRL" {
		return decimal.Zero, errors.New("no such currency")
	}
	return decimal.RequireFromString("0.20"), nil
}

func (f *stubFeed) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

type testServer struct {
	srv  *httptest.Server
	feed *stubFeed
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })

	clk := clock.SystemClock{}
	feed := &stubFeed{}
	converter := service.NewCurrencyConverter(feed, clk, 24*time.Hour)
	tasks := service.NewTaskService(store.Tasks(), store.PriceHistories(), converter, clk, service.DefaultTaskConfig())
	ingest := service.NewIngestService(store.Skins(), store.Conversions(), converter, tasks, clk, 5*time.Minute)
	profitable := service.NewProfitableService(store.Skins(), store.PriceHistories(), service.NewProfitCalculator(), memCache, time.Millisecond)

	r := router.New(router.Config{
		Handler:        handler.New(store, "test"),
		SkinHandler:    handler.NewSkinHandler(ingest, profitable, store.Skins()),
		TaskHandler:    handler.NewTaskHandler(tasks),
		AdminHandler:   handler.NewAdminHandler(store),
		AuthMiddleware: middleware.APIKey(apiKey),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, feed: feed}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func listingBody(id string) map[string]any {
	return map[string]any{
		"id":       id,
		"name":     "AK-47 | Redline (Field-Tested)",
		"price":    40000,
		"currency": "BRL",
		"store":    "skin.market.bitskins",
	}
}

func TestIngestListingEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp, payload := ts.do(t, http.MethodPost, "/api/v1/listings", listingBody("listing-1"))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %v", resp.StatusCode, payload)
	}

	data := payload["data"].(map[string]any)
	if data["wear"] != "FIELD_TESTED" {
		t.Errorf("wear = %v", data["wear"])
	}
	if data["price"].(float64) != 8000 {
		t.Errorf("price = %v, want 8000", data["price"])
	}
	if data["currency"] != "USD" {
		t.Errorf("currency = %v, want USD", data["currency"])
	}

	// The listing queued a refresh task.
	resp, payload = ts.do(t, http.MethodGet, "/api/v1/tasks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tasks status = %d", resp.StatusCode)
	}
	tasks := payload["data"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
}

func TestIngestListingValidation(t *testing.T) {
	ts := newTestServer(t, "")

	body := listingBody("listing-1")
	delete(body, "name")
	resp, _ := ts.do(t, http.MethodPost, "/api/v1/listings", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", resp.StatusCode)
	}

	body = listingBody("listing-1")
	body["name"] = "AK-47 | Redline"
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/listings", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no wear label status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestListingRateDown(t *testing.T) {
	ts := newTestServer(t, "")
	ts.feed.setDown(true)

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/listings", listingBody("listing-1"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	// The listing is parked, visible in admin stats.
	resp, payload := ts.do(t, http.MethodGet, "/api/v1/admin/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	stats := payload["data"].(map[string]any)
	if stats["pending_conversions"].(float64) != 1 {
		t.Errorf("pending_conversions = %v, want 1", stats["pending_conversions"])
	}
	if stats["skins"].(float64) != 0 {
		t.Errorf("skins = %v, want 0", stats["skins"])
	}
}

func TestTaskCompleteFlow(t *testing.T) {
	ts := newTestServer(t, "")

	if resp, _ := ts.do(t, http.MethodPost, "/api/v1/listings", listingBody("listing-1")); resp.StatusCode != http.StatusAccepted {
		t.Fatal("ingest failed")
	}

	_, payload := ts.do(t, http.MethodGet, "/api/v1/tasks", nil)
	task := payload["data"].([]any)[0].(map[string]any)
	taskID := task["id"].(string)

	report := map[string]any{
		"skin_name":     "AK-47 | Redline (Field-Tested)",
		"wear":          "FIELD_TESTED",
		"average_price": 50000,
		"currency":      "BRL",
	}
	resp, payload := ts.do(t, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d: %v", resp.StatusCode, payload)
	}
	history := payload["data"].(map[string]any)
	if history["average_price"].(float64) != 10000 {
		t.Errorf("average_price = %v, want 10000 (converted)", history["average_price"])
	}

	// Completing again: the task is no longer waiting.
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", report)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second complete status = %d, want 404", resp.StatusCode)
	}

	// With a fresh snapshot the skin shows up as profitable.
	resp, payload = ts.do(t, http.MethodGet, "/api/v1/skins/profitable?min_profit_bp=0", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profitable status = %d", resp.StatusCode)
	}
	result := payload["data"].([]any)
	if len(result) != 1 {
		t.Fatalf("profitable = %d, want 1", len(result))
	}
	profit := result[0].(map[string]any)["profit"].(map[string]any)
	if profit["profit_bp"].(float64) != 500 {
		t.Errorf("profit_bp = %v, want 500", profit["profit_bp"])
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/tasks/unknown/complete", report)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	ts := newTestServer(t, "secret")

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/tasks", nil)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", resp.StatusCode)
	}

	req.Header.Set("X-API-Key", "secret")
	resp, err = ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with key status = %d, want 200", resp.StatusCode)
	}

	// Health stays open without a key.
	req, _ = http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/health", nil)
	resp, err = ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}
