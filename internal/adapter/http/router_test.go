package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/cardledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/cardledger/internal/adapter/http/middleware"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/auth"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	cached, _ := json.Marshal(map[string]any{"status": http.StatusCreated, "body": []byte(`{"id":"bill"}`)})
	store := &stubIdempotencyStore{cached: cached}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
		cfg.IdempotencyTTL = time.Minute
	}))

	body := `{"credit_card_id":"card","amount":"100.00","installments":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rec.Code)
	}
	if rec.Header().Get(apimiddleware.ReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"POST /api/v1/credit-cards/",
		"GET /api/v1/credit-cards/",
		"GET /api/v1/credit-cards/{id}",
		"PATCH /api/v1/credit-cards/{id}",
		"GET /api/v1/credit-cards/{id}/available-limit",
		"GET /api/v1/credit-cards/{id}/invoices",
		"PUT /api/v1/credit-cards/{id}/invoices/{month}",
		"GET /api/v1/credit-cards/{id}/purchases",
		"POST /api/v1/purchases/",
		"POST /api/v1/purchases/preview",
		"GET /api/v1/purchases/{id}",
		"DELETE /api/v1/purchases/{id}",
		"POST /api/v1/invoices/close-due",
		"GET /api/v1/invoices/{id}",
		"GET /api/v1/invoices/{id}/balance",
		"GET /api/v1/invoices/{id}/installments",
		"POST /api/v1/invoices/{id}/close",
		"PUT /api/v1/invoices/{id}/paid",
		"PUT /api/v1/invoices/{id}/absolute-value",
		"PUT /api/v1/invoices/{id}/total-amount",
		"GET /api/v1/invoices/{id}/partial-payments",
		"POST /api/v1/invoices/{id}/partial-payments",
		"GET /api/v1/partial-payments/{id}",
		"DELETE /api/v1/partial-payments/{id}",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}

	if seen["POST /auth/token"] {
		t.Fatalf("token endpoint must not be registered when auth is disabled")
	}
}

func TestNewRouter_AuthGuardsAPI(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Metrics = m
		cfg.Authenticator = apimiddleware.NewAuthenticator(jwtManager, m)
		cfg.AuthHandler = handler.NewAuthHandler(jwtManager, time.Hour, m)
	}))

	viewerToken, err := jwtManager.Generate(&domain.User{ID: "viewer-1", Role: domain.RoleViewer})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "missing token", method: http.MethodGet, path: "/api/v1/credit-cards/card-1", want: http.StatusUnauthorized},
		{name: "viewer cannot register purchases", method: http.MethodPost, path: "/api/v1/purchases", token: viewerToken, want: http.StatusForbidden},
		{name: "viewer cannot close invoices", method: http.MethodPost, path: "/api/v1/invoices/inv-1/close", token: viewerToken, want: http.StatusForbidden},
		{name: "viewer cannot create cards", method: http.MethodPost, path: "/api/v1/credit-cards", token: viewerToken, want: http.StatusForbidden},
		{name: "me requires token", method: http.MethodGet, path: "/auth/me", want: http.StatusUnauthorized},
		{name: "me with token", method: http.MethodGet, path: "/auth/me", token: viewerToken, want: http.StatusOK},
		{name: "health stays public", method: http.MethodGet, path: "/health", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		HealthHandler:         handler.NewHealthHandler(nil),
		CreditCardHandler:     handler.NewCreditCardHandler(nil, nil),
		PurchaseHandler:       handler.NewPurchaseHandler(nil),
		InvoiceHandler:        handler.NewInvoiceHandler(nil),
		PartialPaymentHandler: handler.NewPartialPaymentHandler(nil),
		MetricsHandler:        http.NotFoundHandler(),
		Logger:                zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubIdempotencyStore struct {
	checkCalled bool
	cached      []byte
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return s.cached != nil, s.cached, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return nil
}
