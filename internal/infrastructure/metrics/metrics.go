package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Invoice metrics
	InvoicesCreated      prometheus.Counter
	InvoicesClosed       *prometheus.CounterVec
	InvoiceOverrides     *prometheus.CounterVec
	CreditCarriedForward prometheus.Counter
	CarriedCreditAmount  prometheus.Histogram
	CloseDuration        prometheus.Histogram

	// Purchase metrics
	PurchasesRegistered   prometheus.Counter
	PurchasesDeleted      prometheus.Counter
	InstallmentsScheduled prometheus.Counter
	PurchaseAmount        prometheus.Histogram

	// Partial payment metrics
	PartialPayments      *prometheus.CounterVec
	PartialPaymentAmount prometheus.Histogram

	// Limit metrics
	LimitCalculations prometheus.Counter
	LimitDuration     prometheus.Histogram

	// Error metrics
	OperationErrors  *prometheus.CounterVec
	VersionConflicts *prometheus.CounterVec

	// Background job metrics
	ClosingJobRuns     *prometheus.CounterVec
	ClosingJobInvoices prometheus.Counter
	OutboxPublished    prometheus.Counter
	OutboxErrors       prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBRetries *prometheus.CounterVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	BreakerState    prometheus.Gauge

	// Authentication metrics
	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all metrics on the default registerer
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Invoice metrics
		InvoicesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_invoices_created_total",
			Help: "Total number of invoices created by resolve-or-create",
		}),
		InvoicesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_invoices_closed_total",
				Help: "Total number of invoices closed by outcome",
			},
			[]string{"paid"},
		),
		InvoiceOverrides: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_invoice_overrides_total",
				Help: "Total manual invoice overrides by field",
			},
			[]string{"field"},
		),
		CreditCarriedForward: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_credit_carried_forward_total",
			Help: "Total number of closes that carried credit to the next invoice",
		}),
		CarriedCreditAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardledger_carried_credit_amount",
			Help:    "Credit amounts carried to the next invoice",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		}),
		CloseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardledger_invoice_close_duration_seconds",
			Help:    "Duration of invoice close operations",
			Buckets: prometheus.DefBuckets,
		}),

		// Purchase metrics
		PurchasesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_purchases_registered_total",
			Help: "Total number of purchases registered",
		}),
		PurchasesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_purchases_deleted_total",
			Help: "Total number of purchases deleted",
		}),
		InstallmentsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_installments_scheduled_total",
			Help: "Total number of installments scheduled",
		}),
		PurchaseAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardledger_purchase_amount",
			Help:    "Purchase amounts",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),

		// Partial payment metrics
		PartialPayments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_partial_payments_total",
				Help: "Total partial payment operations by type",
			},
			[]string{"operation"},
		),
		PartialPaymentAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardledger_partial_payment_amount",
			Help:    "Partial payment amounts",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		}),

		// Limit metrics
		LimitCalculations: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_limit_calculations_total",
			Help: "Total number of available limit calculations",
		}),
		LimitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardledger_limit_duration_seconds",
			Help:    "Duration of available limit calculations",
			Buckets: prometheus.DefBuckets,
		}),

		// Error metrics
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_operation_errors_total",
				Help: "Total engine errors by operation and kind",
			},
			[]string{"operation", "kind"},
		),
		VersionConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_version_conflicts_total",
				Help: "Total optimistic locking conflicts by operation",
			},
			[]string{"operation"},
		),

		// Background job metrics
		ClosingJobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_closing_job_runs_total",
				Help: "Total closing job runs by status",
			},
			[]string{"status"},
		),
		ClosingJobInvoices: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_closing_job_invoices_total",
			Help: "Total invoices closed by the closing job",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_outbox_published_total",
			Help: "Total outbox events published",
		}),
		OutboxErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_outbox_errors_total",
			Help: "Total outbox publish failures",
		}),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_db_retries_total",
				Help: "Total retried database operations by reason",
			},
			[]string{"reason"},
		),

		// Redis metrics
		RedisOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_card_cache_lookups_total",
				Help: "Credit card cache lookups by result",
			},
			[]string{"result"},
		),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cardledger_card_cache_breaker_state",
			Help: "Card cache circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),

		// Authentication metrics
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_auth_attempts_total",
				Help: "Total authentication attempts",
			},
			[]string{"status"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		// Audit metrics
		AuditLogsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardledger_audit_logs_total",
				Help: "Total audit logs created",
			},
			[]string{"action", "status"},
		),
	}
}
