package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/cardledger/internal/adapter/http/handler"
	"github.com/iho/cardledger/internal/adapter/http/middleware"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
	"github.com/iho/cardledger/internal/usecase"
)

// RouterConfig holds dependencies for the router. Optional parts are left
// nil to disable them.
type RouterConfig struct {
	CreditCardHandler     *handler.CreditCardHandler
	PurchaseHandler       *handler.PurchaseHandler
	InvoiceHandler        *handler.InvoiceHandler
	PartialPaymentHandler *handler.PartialPaymentHandler
	HealthHandler         *handler.HealthHandler

	// AuthHandler and Authenticator are set together when auth is enabled.
	AuthHandler   *handler.AuthHandler
	Authenticator *middleware.Authenticator

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Logger         zerolog.Logger

	CORSAllowedOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-Match", middleware.IdempotencyKeyHeader},
		ExposedHeaders: []string{"ETag", middleware.ReplayHeader},
		MaxAge:         300,
	}))

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	if cfg.AuthHandler != nil {
		r.Post("/auth/token", cfg.AuthHandler.IssueToken)
		if cfg.Authenticator != nil {
			r.With(cfg.Authenticator.Require).Get("/auth/me", cfg.AuthHandler.CurrentUser)
		}
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Authenticator != nil {
			r.Use(cfg.Authenticator.Require)
		}

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger).Wrap)
		}

		canWrite := roleGuard(cfg.Authenticator, middleware.CanCreate)
		canManageCards := roleGuard(cfg.Authenticator, middleware.CanManageCards)

		// Credit cards
		r.Route("/credit-cards", func(r chi.Router) {
			r.With(canManageCards).Post("/", cfg.CreditCardHandler.Create)
			r.Get("/", cfg.CreditCardHandler.List)
			r.Get("/{id}", cfg.CreditCardHandler.Get)
			r.With(canManageCards).Patch("/{id}", cfg.CreditCardHandler.Update)
			r.Get("/{id}/available-limit", cfg.CreditCardHandler.AvailableLimit)
			r.Get("/{id}/invoices", cfg.InvoiceHandler.ListByCard)
			r.With(canWrite).Put("/{id}/invoices/{month}", cfg.InvoiceHandler.Resolve)
			r.Get("/{id}/purchases", cfg.PurchaseHandler.ListByCard)
		})

		// Purchases
		r.Route("/purchases", func(r chi.Router) {
			r.With(canWrite).Post("/", cfg.PurchaseHandler.Create)
			r.Post("/preview", cfg.PurchaseHandler.Preview)
			r.Get("/{id}", cfg.PurchaseHandler.Get)
			r.With(canWrite).Delete("/{id}", cfg.PurchaseHandler.Delete)
		})

		// Invoices
		r.Route("/invoices", func(r chi.Router) {
			r.With(canWrite).Post("/close-due", cfg.InvoiceHandler.CloseDue)
			r.Get("/{id}", cfg.InvoiceHandler.Get)
			r.Get("/{id}/balance", cfg.InvoiceHandler.Balance)
			r.Get("/{id}/installments", cfg.InvoiceHandler.ListInstallments)
			r.Get("/{id}/partial-payments", cfg.PartialPaymentHandler.ListByInvoice)

			r.Group(func(r chi.Router) {
				r.Use(canWrite)
				r.Post("/{id}/close", cfg.InvoiceHandler.Close)
				r.Put("/{id}/paid", cfg.InvoiceHandler.SetPaid)
				r.Put("/{id}/absolute-value", cfg.InvoiceHandler.SetUseAbsoluteValue)
				r.Put("/{id}/total-amount", cfg.InvoiceHandler.SetTotalAmount)
				r.Post("/{id}/partial-payments", cfg.PartialPaymentHandler.Register)
			})
		})

		// Partial payments
		r.Route("/partial-payments", func(r chi.Router) {
			r.Get("/{id}", cfg.PartialPaymentHandler.Get)
			r.With(canWrite).Delete("/{id}", cfg.PartialPaymentHandler.Delete)
		})
	})

	return r
}

// roleGuard enforces allowed when authentication is on and is a no-op
// otherwise.
func roleGuard(authn *middleware.Authenticator, allowed func(domain.Role) bool) func(http.Handler) http.Handler {
	if authn == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RequireRole(allowed)
}
