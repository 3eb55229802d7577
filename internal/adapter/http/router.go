package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/adapter/http/handler"
	"github.com/iho/revledger/internal/adapter/http/middleware"
	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/auth"
	"github.com/iho/revledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	EventHandler  *handler.EventHandler
	LedgerHandler *handler.LedgerHandler
	AdminHandler  *handler.AdminHandler
	HealthHandler *handler.HealthHandler

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// IdempotencyStore enables Idempotency-Key handling on mutating routes.
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	// RateLimiter throttles the public read endpoints.
	RateLimiter *middleware.RateLimiter
	// CORSAllowedOrigins lists browser origins allowed on the read endpoints.
	// Empty disables CORS headers.
	CORSAllowedOrigins []string
	// JWTManager protects the admin routes. Admin routes are not mounted
	// without it.
	JWTManager *auth.JWTManager
	Logger     zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Metrics)

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger)
			r.Use(idempotencyMiddleware.Wrap)
		}

		r.Post("/events", cfg.EventHandler.Create)

		r.Route("/ledger", func(r chi.Router) {
			if len(cfg.CORSAllowedOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins: cfg.CORSAllowedOrigins,
					AllowedMethods: []string{http.MethodGet, http.MethodOptions},
					AllowedHeaders: []string{"Accept", "Content-Type"},
					MaxAge:         300,
				}))
			}
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.Limit)
			}
			r.Get("/entries", cfg.LedgerHandler.Entries)
			r.Get("/summary", cfg.LedgerHandler.Summary)
			r.Get("/verify", cfg.LedgerHandler.Verify)
			r.Get("/audit", cfg.LedgerHandler.Audit)
		})

		if cfg.JWTManager != nil && cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(cfg.JWTManager))
				r.Use(middleware.RequireRole(domain.RoleOperator))
				r.Post("/replay", cfg.AdminHandler.Replay)
				r.Post("/exports", cfg.AdminHandler.Export)
			})
		}
	})

	return r
}
