package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/logger"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// PartialPaymentUseCase registers and removes partial payments on open
// invoices.
type PartialPaymentUseCase struct {
	txManager   TransactionManager
	cardRepo    CreditCardRepository
	invoiceRepo InvoiceRepository
	paymentRepo PartialPaymentRepository
	limits      *LimitUseCase
	journal     journal
	idGen       IDGenerator
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewPartialPaymentUseCase creates a new PartialPaymentUseCase.
func NewPartialPaymentUseCase(
	txManager TransactionManager,
	cardRepo CreditCardRepository,
	invoiceRepo InvoiceRepository,
	paymentRepo PartialPaymentRepository,
	limits *LimitUseCase,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	log zerolog.Logger,
) *PartialPaymentUseCase {
	return &PartialPaymentUseCase{
		txManager:   txManager,
		cardRepo:    cardRepo,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		limits:      limits,
		journal:     journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen, metrics: metrics},
		idGen:       idGen,
		metrics:     metrics,
		log:         log,
	}
}

// RegisterPartialPaymentInput represents input for registering a payment.
// Amount is nullable so that a missing amount is rejected like a
// non-positive one.
type RegisterPartialPaymentInput struct {
	Description *string
	InvoiceID   string
	Amount      decimal.NullDecimal
}

// RegisterPartialPaymentResult carries the stored payment and the card's
// available limit right after it.
type RegisterPartialPaymentResult struct {
	Payment        *domain.PartialPayment
	AvailableLimit *domain.AvailableLimit
}

// Register records a partial payment against an open invoice. Checks run in
// a fixed order: invoice, card, card policy, invoice state, amount.
// Overpayment is allowed.
func (uc *PartialPaymentUseCase) Register(ctx context.Context, input RegisterPartialPaymentInput) (*RegisterPartialPaymentResult, error) {
	result, err := uc.register(ctx, input)
	if err != nil {
		uc.journal.failure(ctx, domain.AuditActionPartialPaymentRegister, domain.AggregateTypeInvoice, input.InvoiceID, err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PartialPayments.WithLabelValues("registered").Inc()
		uc.metrics.PartialPaymentAmount.Observe(result.Payment.Amount.InexactFloat64())
	}

	log := logger.WithContext(ctx, uc.log)
	log.Info().
		Str("payment_id", result.Payment.ID).
		Str("invoice_id", result.Payment.InvoiceID).
		Str("amount", result.Payment.Amount.StringFixed(2)).
		Str("available_limit", result.AvailableLimit.AvailableLimit.StringFixed(2)).
		Msg("partial payment registered")

	return result, nil
}

func (uc *PartialPaymentUseCase) register(ctx context.Context, input RegisterPartialPaymentInput) (*RegisterPartialPaymentResult, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}

	card, err := uc.cardRepo.GetByID(ctx, inv.CreditCardID)
	if err != nil {
		return nil, err
	}

	if err := card.ValidatePartialPayment(); err != nil {
		return nil, err
	}

	if inv.Closed() {
		return nil, domain.ErrInvoiceClosed
	}

	if err := domain.ValidatePaymentAmount(input.Amount); err != nil {
		return nil, err
	}

	if input.Description != nil {
		if err := domain.ValidateDescription(*input.Description); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	payment := &domain.PartialPayment{
		ID:          uc.idGen.Generate(),
		InvoiceID:   inv.ID,
		Amount:      input.Amount.Decimal,
		PaymentDate: now,
		Description: input.Description,
		CreatedAt:   now,
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.paymentRepo.Create(txCtx, tx, payment); err != nil {
		return nil, err
	}

	// The invoice row is rewritten so a concurrent close sees a new version.
	inv.UpdatedAt = now
	if err := uc.invoiceRepo.Update(txCtx, tx, inv); err != nil {
		return nil, err
	}

	payload := domain.PartialPaymentEvent{
		PaymentID:    payment.ID,
		InvoiceID:    inv.ID,
		CreditCardID: card.ID,
		Amount:       payment.Amount.StringFixed(2),
	}
	if err := uc.journal.emit(txCtx, tx, domain.AggregateTypePartialPayment, payment.ID, domain.EventTypePartialPaymentRegistered, payload, now); err != nil {
		return nil, err
	}
	if err := uc.journal.audit(txCtx, tx, domain.AuditActionPartialPaymentRegister, domain.AggregateTypePartialPayment, payment.ID, nil, payment, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	limit, err := uc.limits.forCard(ctx, card)
	if err != nil {
		return nil, err
	}

	return &RegisterPartialPaymentResult{Payment: payment, AvailableLimit: limit}, nil
}

// Delete removes a partial payment while its invoice is open. A payment
// whose invoice no longer exists is reported as domain.ErrInvalidState.
func (uc *PartialPaymentUseCase) Delete(ctx context.Context, paymentID string) (bool, error) {
	payment, err := uc.delete(ctx, paymentID)
	if err != nil {
		uc.journal.failure(ctx, domain.AuditActionPartialPaymentDelete, domain.AggregateTypePartialPayment, paymentID, err)
		return false, err
	}

	if uc.metrics != nil {
		uc.metrics.PartialPayments.WithLabelValues("deleted").Inc()
	}

	log := logger.WithContext(ctx, uc.log)
	log.Info().
		Str("payment_id", payment.ID).
		Str("invoice_id", payment.InvoiceID).
		Msg("partial payment deleted")

	return true, nil
}

func (uc *PartialPaymentUseCase) delete(ctx context.Context, paymentID string) (*domain.PartialPayment, error) {
	payment, err := uc.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	inv, err := uc.invoiceRepo.GetByID(ctx, payment.InvoiceID)
	if errors.Is(err, domain.ErrInvoiceNotFound) {
		return nil, domain.ErrInvalidState
	}
	if err != nil {
		return nil, err
	}

	if inv.Closed() {
		return nil, domain.ErrInvoiceClosed
	}

	now := time.Now().UTC()

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.paymentRepo.Delete(txCtx, tx, paymentID); err != nil {
		return nil, err
	}

	inv.UpdatedAt = now
	if err := uc.invoiceRepo.Update(txCtx, tx, inv); err != nil {
		return nil, err
	}

	payload := domain.PartialPaymentEvent{
		PaymentID:    payment.ID,
		InvoiceID:    inv.ID,
		CreditCardID: inv.CreditCardID,
		Amount:       payment.Amount.StringFixed(2),
	}
	if err := uc.journal.emit(txCtx, tx, domain.AggregateTypePartialPayment, payment.ID, domain.EventTypePartialPaymentDeleted, payload, now); err != nil {
		return nil, err
	}
	if err := uc.journal.audit(txCtx, tx, domain.AuditActionPartialPaymentDelete, domain.AggregateTypePartialPayment, payment.ID, payment, nil, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return payment, nil
}

// GetPartialPayment retrieves a partial payment by ID.
func (uc *PartialPaymentUseCase) GetPartialPayment(ctx context.Context, id string) (*domain.PartialPayment, error) {
	return uc.paymentRepo.GetByID(ctx, id)
}

// ListByInvoice lists the partial payments of an invoice.
func (uc *PartialPaymentUseCase) ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.PartialPayment, error) {
	if _, err := uc.invoiceRepo.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}

	return uc.paymentRepo.ListByInvoice(ctx, invoiceID)
}
