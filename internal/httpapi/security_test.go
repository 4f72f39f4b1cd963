package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"posdemo/backend/internal/cache"
	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/service"
	"posdemo/backend/internal/store/memory"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allowed origin *, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestClientRateLimitReturns429(t *testing.T) {
	repo := memory.NewSeeded()
	logger := quietLogger()
	svc := service.New(repo, cache.NewMemoryCartCache(), time.Hour, logger)
	api := New(svc, NewAuthManager("test-secret-key-with-enough-length", time.Hour, repo), Options{
		AllowedOrigin:  "*",
		RateLimitRPS:   0.001,
		RateLimitBurst: 2,
	}, logger)
	handler := api.Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		codes = append(codes, res.Code)
	}

	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized {
		t.Fatalf("expected burst requests to reach auth, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %v", codes)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	other.RemoteAddr = "198.51.100.8:4000"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected a different client to have its own bucket, got %d", res.Code)
	}
}

func TestClientRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := newClientRateLimiter(1, 1)
	limiter.Allow("203.0.113.1")
	limiter.visitors["203.0.113.1"].lastSeen = time.Now().Add(-10 * time.Minute)
	limiter.Allow("203.0.113.2")

	limiter.sweep(5 * time.Minute)

	if _, ok := limiter.visitors["203.0.113.1"]; ok {
		t.Fatalf("expected idle visitor to be removed")
	}
	if _, ok := limiter.visitors["203.0.113.2"]; !ok {
		t.Fatalf("expected active visitor to be kept")
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"Bagel","category":"Food","price":2,"discount":50}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestCashierEndpointsRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashier := login(t, handler, "cashier", "cashier123")
	admin := login(t, handler, "admin", "admin123")

	if res := doJSON(t, handler, http.MethodGet, "/api/v1/users/cashiers", cashier, nil); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", res.Code)
	}

	res := doJSON(t, handler, http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{Username: "barista", Password: "pass1234"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", res.Code, res.Body.String())
	}
	login(t, handler, "barista", "pass1234")
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestParseTimeParam(t *testing.T) {
	to, err := parseTimeParam("2025-03-01", true)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if want := time.Date(2025, 3, 1, 23, 59, 59, 999999999, time.UTC); !to.Equal(want) {
		t.Fatalf("expected end of day %s, got %s", want, to)
	}

	from, err := parseTimeParam("2025-03-01T08:30:00Z", false)
	if err != nil || from.Hour() != 8 {
		t.Fatalf("expected RFC3339 parse, got %v %v", from, err)
	}

	if got, err := parseTimeParam("", false); got != nil || err != nil {
		t.Fatalf("expected nil for empty input")
	}
}
