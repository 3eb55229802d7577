package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/revledger/internal/adapter/http/middleware"
	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/auth"
	"github.com/iho/revledger/internal/usecase"
	"github.com/iho/revledger/internal/usecase/mocks"
)

const eventJSON = `{"event_id":"evt_1","kind":"payment","stream":"merch","provider":"stripe","gross_amount":1000,"timestamp":"2024-08-01T12:00:00Z"}`

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessReads(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/summary", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/summary", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}

	// Intake is never throttled.
	req3 := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(eventJSON))
	req3.RemoteAddr = "1.2.3.4:1234"
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusCreated {
		t.Fatalf("expected intake to succeed, got %d: %s", rec3.Code, rec3.Body.String())
	}
}

func TestNewRouter_CORSOnReadEndpoints(t *testing.T) {
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.CORSAllowedOrigins = []string{"https://ledger.example.org"}
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ledger/summary", nil)
	req.Header.Set("Origin", "https://ledger.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ledger.example.org" {
		t.Fatalf("expected preflight to allow origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ledger/summary", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected unknown origin to be refused, got %q", got)
	}
}

func TestNewRouter_IdempotencyReplaysIntake(t *testing.T) {
	store := mocks.NewIdempotencyStore()
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(eventJSON))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	second := send()

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both responses to be 201, got %d and %d", first.Code, second.Code)
	}
	if second.Header().Get("X-Idempotency-Replay") != "true" {
		t.Fatalf("expected second response to be a replay")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", first.Body.String(), second.Body.String())
	}
}

func TestNewRouter_AdminRequiresOperatorToken(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Minute)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.JWTManager = manager
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/exports", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := manager.Generate("ops", domain.RoleOperator)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/exports", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with export disabled, got %d", rec.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.JWTManager = auth.NewJWTManager("secret", time.Minute)
		cfg.MetricsHandler = http.NotFoundHandler()
	}))

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
		"POST /api/v1/events",
		"GET /api/v1/ledger/entries",
		"GET /api/v1/ledger/summary",
		"GET /api/v1/ledger/verify",
		"GET /api/v1/ledger/audit",
		"POST /api/v1/admin/replay",
		"POST /api/v1/admin/exports",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered, have %v", route, seen)
		}
	}
}

func TestNewRouter_AdminNotMountedWithoutAuth(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/replay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for admin route without auth, got %d", rec.Code)
	}
}

func newRouterConfig(t *testing.T, opts ...func(*RouterConfig)) RouterConfig {
	t.Helper()

	ledger := mocks.NewMemoryLedger()
	allocation, err := usecase.NewAllocationUseCase(usecase.AllocationDeps{
		TxManager: ledger,
		Ledger:    ledger,
		Dedup:     ledger,
		Outbox:    ledger,
		IDGen:     mocks.NewSequentialIDGenerator(),
		Retrier:   &mocks.StubRetrier{MaxAttempts: 1},
		Logger:    zerolog.Nop(),
		Policy:    domain.DefaultSplitPolicy,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	verifier := usecase.NewVerifierUseCase(ledger, nil)
	summary := usecase.NewSummaryUseCase(verifier, nil, time.Second, zerolog.Nop())
	export := usecase.NewExportUseCase(ledger, nil, "revledger", zerolog.Nop())

	cfg := RouterConfig{
		EventHandler:  handler.NewEventHandler(allocation),
		LedgerHandler: handler.NewLedgerHandler(ledger, verifier, summary, domain.DefaultSplitPolicy),
		AdminHandler:  handler.NewAdminHandler(allocation, export, zerolog.Nop()),
		HealthHandler: handler.NewHealthHandler(handler.HealthCheck{
			Name: "storage",
			Ping: func(ctx context.Context) error { return nil },
		}),
		Logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
