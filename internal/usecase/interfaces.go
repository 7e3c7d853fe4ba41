package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
)

// CreditCardRepository defines data access for credit cards.
type CreditCardRepository interface {
	Create(ctx context.Context, card *domain.CreditCard) error
	GetByID(ctx context.Context, id string) (*domain.CreditCard, error)
	// Update writes card if its Version matches the stored one and bumps
	// card.Version on success. Returns domain.ErrVersionConflict otherwise.
	Update(ctx context.Context, card *domain.CreditCard) error
	List(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error)
}

// InvoiceRepository defines data access for invoices.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	GetByCardAndMonth(ctx context.Context, creditCardID string, referenceMonth time.Time) (*domain.Invoice, error)
	// GetOrCreate inserts inv unless an invoice for the same card and
	// reference month exists, and returns the stored row. created reports
	// whether inv was inserted. Must be atomic under concurrent callers.
	GetOrCreate(ctx context.Context, tx Transaction, inv *domain.Invoice) (stored *domain.Invoice, created bool, err error)
	ListByCardAndStatus(ctx context.Context, creditCardID string, closed, paid bool) ([]*domain.Invoice, error)
	ListByCard(ctx context.Context, creditCardID string, limit, offset int) ([]*domain.Invoice, error)
	// ListOpenUpTo pages through open invoices with a reference month on or
	// before month, ordered by reference month and id.
	ListOpenUpTo(ctx context.Context, referenceMonth time.Time, limit, offset int) ([]*domain.Invoice, error)
	// Update writes inv if its Version matches the stored one and bumps
	// inv.Version on success. Returns domain.ErrVersionConflict otherwise.
	Update(ctx context.Context, tx Transaction, inv *domain.Invoice) error
	// SaveAll applies Update to every invoice in order.
	SaveAll(ctx context.Context, tx Transaction, invoices []*domain.Invoice) error
}

// InstallmentRepository defines data access for installments.
type InstallmentRepository interface {
	CreateBatch(ctx context.Context, tx Transaction, installments []*domain.Installment) error
	ListByBill(ctx context.Context, billID string) ([]*domain.Installment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.Installment, error)
	DeleteByBill(ctx context.Context, tx Transaction, billID string) error
	SumByInvoice(ctx context.Context, tx Transaction, invoiceID string) (decimal.Decimal, error)
	SumByInvoiceIDs(ctx context.Context, invoiceIDs []string) (decimal.Decimal, error)
}

// PartialPaymentRepository defines data access for partial payments.
type PartialPaymentRepository interface {
	Create(ctx context.Context, tx Transaction, payment *domain.PartialPayment) error
	GetByID(ctx context.Context, id string) (*domain.PartialPayment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.PartialPayment, error)
	SumByInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error)
	CountByInvoice(ctx context.Context, invoiceID string) (int, error)
	SumByInvoiceIDs(ctx context.Context, invoiceIDs []string) (decimal.Decimal, error)
	Delete(ctx context.Context, tx Transaction, id string) error
}

// BillRepository defines data access for purchases.
type BillRepository interface {
	Create(ctx context.Context, tx Transaction, bill *domain.Bill) error
	GetByID(ctx context.Context, id string) (*domain.Bill, error)
	ListByCard(ctx context.Context, creditCardID string, limit, offset int) ([]*domain.Bill, error)
	Delete(ctx context.Context, tx Transaction, id string) error
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
	GetByResourceID(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}

// Retrier re-runs an operation that failed with a transient error such as a
// version conflict or a database deadlock.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}
