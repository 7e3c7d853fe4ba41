package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/logger"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// InvoiceUseCase manages the invoice lifecycle: resolve-or-create, close
// with credit carry-forward, and manual overrides.
type InvoiceUseCase struct {
	txManager       TransactionManager
	cardRepo        CreditCardRepository
	invoiceRepo     InvoiceRepository
	installmentRepo InstallmentRepository
	paymentRepo     PartialPaymentRepository
	journal         journal
	idGen           IDGenerator
	metrics         *metrics.Metrics
	log             zerolog.Logger
}

// NewInvoiceUseCase creates a new InvoiceUseCase.
func NewInvoiceUseCase(
	txManager TransactionManager,
	cardRepo CreditCardRepository,
	invoiceRepo InvoiceRepository,
	installmentRepo InstallmentRepository,
	paymentRepo PartialPaymentRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	log zerolog.Logger,
) *InvoiceUseCase {
	return &InvoiceUseCase{
		txManager:       txManager,
		cardRepo:        cardRepo,
		invoiceRepo:     invoiceRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		journal:         journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen, metrics: metrics},
		idGen:           idGen,
		metrics:         metrics,
		log:             log,
	}
}

// CloseResult describes a completed close.
type CloseResult struct {
	Invoice     *domain.Invoice
	NextInvoice *domain.Invoice // set only when credit was carried forward
	FinalAmount decimal.Decimal
	Credit      decimal.Decimal
}

// InvoiceBalance is the live balance view of an invoice.
type InvoiceBalance struct {
	Invoice       *domain.Invoice
	PaymentsTotal decimal.Decimal
	PaymentsCount int
	Balance       decimal.Decimal
	FinalAmount   decimal.Decimal
}

// ResolveInvoice returns the card's invoice for referenceMonth, creating an
// empty open invoice when none exists.
func (uc *InvoiceUseCase) ResolveInvoice(ctx context.Context, creditCardID string, referenceMonth time.Time) (*domain.Invoice, error) {
	if _, err := uc.cardRepo.GetByID(ctx, creditCardID); err != nil {
		return nil, err
	}

	month := domain.MonthStart(referenceMonth)

	existing, err := uc.invoiceRepo.GetByCardAndMonth(ctx, creditCardID, month)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrInvoiceNotFound) {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	inv, err := resolveInvoice(txCtx, tx, uc.invoiceRepo, uc.journal, creditCardID, month, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return inv, nil
}

// resolveInvoice is the atomic get-or-create shared by every flow that
// places money on a month.
func resolveInvoice(
	ctx context.Context,
	tx Transaction,
	invoiceRepo InvoiceRepository,
	j journal,
	creditCardID string,
	month, now time.Time,
) (*domain.Invoice, error) {
	candidate := domain.NewInvoice(j.idGen.Generate(), creditCardID, month, now)

	inv, created, err := invoiceRepo.GetOrCreate(ctx, tx, candidate)
	if err != nil {
		return nil, err
	}

	if created {
		payload := map[string]any{
			"invoice_id":      inv.ID,
			"credit_card_id":  inv.CreditCardID,
			"reference_month": domain.FormatReferenceMonth(inv.ReferenceMonth),
		}
		if err := j.emit(ctx, tx, domain.AggregateTypeInvoice, inv.ID, domain.EventTypeInvoiceCreated, payload, now); err != nil {
			return nil, err
		}

		if j.metrics != nil {
			j.metrics.InvoicesCreated.Inc()
		}
	}

	return inv, nil
}

// GetInvoice retrieves an invoice by ID.
func (uc *InvoiceUseCase) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return uc.invoiceRepo.GetByID(ctx, id)
}

// ListInvoicesByCardInput represents input for listing a card's invoices.
type ListInvoicesByCardInput struct {
	CreditCardID string
	Limit        int
	Offset       int
}

// ListInvoicesByCard lists a card's invoices, newest reference month first.
func (uc *InvoiceUseCase) ListInvoicesByCard(ctx context.Context, input ListInvoicesByCardInput) ([]*domain.Invoice, error) {
	if _, err := uc.cardRepo.GetByID(ctx, input.CreditCardID); err != nil {
		return nil, err
	}

	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)

	return uc.invoiceRepo.ListByCard(ctx, input.CreditCardID, limit, offset)
}

// ListInstallments lists the installments billed on an invoice.
func (uc *InvoiceUseCase) ListInstallments(ctx context.Context, invoiceID string) ([]*domain.Installment, error) {
	if _, err := uc.invoiceRepo.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}

	return uc.installmentRepo.ListByInvoice(ctx, invoiceID)
}

// Balance returns totalAmount + previousBalance - payments along with the
// close-time final amount, which ignores previousBalance.
func (uc *InvoiceUseCase) Balance(ctx context.Context, invoiceID string) (*InvoiceBalance, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	payments, err := uc.paymentRepo.SumByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	count, err := uc.paymentRepo.CountByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	return &InvoiceBalance{
		Invoice:       inv,
		PaymentsTotal: payments,
		PaymentsCount: count,
		Balance:       inv.Balance(payments),
		FinalAmount:   inv.FinalAmount(payments),
	}, nil
}

// Close closes an open invoice. When payments exceed the total, the excess
// is added to the next month's previousBalance; the next invoice is written
// before the closed one, in the same transaction.
func (uc *InvoiceUseCase) Close(ctx context.Context, invoiceID string) (*CloseResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx, uc.log)

	result, err := uc.close(ctx, invoiceID)
	if err != nil {
		uc.journal.failure(ctx, domain.AuditActionInvoiceClose, domain.AggregateTypeInvoice, invoiceID, err)
		if domain.IsRetryable(err) {
			log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("invoice close lost a version race")
		}
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.InvoicesClosed.WithLabelValues(strconv.FormatBool(result.Invoice.Paid())).Inc()
		uc.metrics.CloseDuration.Observe(time.Since(start).Seconds())
		if result.NextInvoice != nil {
			uc.metrics.CreditCarriedForward.Inc()
			uc.metrics.CarriedCreditAmount.Observe(result.Credit.InexactFloat64())
		}
	}

	event := log.Info().
		Str("invoice_id", result.Invoice.ID).
		Str("credit_card_id", result.Invoice.CreditCardID).
		Str("final_amount", result.FinalAmount.StringFixed(2)).
		Bool("paid", result.Invoice.Paid())
	if result.NextInvoice != nil {
		event = event.
			Str("next_invoice_id", result.NextInvoice.ID).
			Str("credit", result.Credit.StringFixed(2))
	}
	event.Msg("invoice closed")

	return result, nil
}

func (uc *InvoiceUseCase) close(ctx context.Context, invoiceID string) (*CloseResult, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if inv.Closed() {
		return nil, domain.ErrInvoiceAlreadyClosed
	}

	payments, err := uc.paymentRepo.SumByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	before := *inv
	now := time.Now().UTC()

	credit, err := inv.Close(payments, now)
	if err != nil {
		return nil, err
	}

	result := &CloseResult{
		Invoice:     inv,
		FinalAmount: inv.FinalAmount(payments),
		Credit:      credit,
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if credit.IsPositive() {
		next, err := resolveInvoice(txCtx, tx, uc.invoiceRepo, uc.journal, inv.CreditCardID, inv.NextReferenceMonth(), now)
		if err != nil {
			return nil, err
		}

		next.ReceiveCredit(credit, now)
		if err := uc.invoiceRepo.Update(txCtx, tx, next); err != nil {
			return nil, err
		}

		if err := uc.invoiceRepo.Update(txCtx, tx, inv); err != nil {
			return nil, &domain.CarryForwardError{
				InvoiceID:     inv.ID,
				NextInvoiceID: next.ID,
				Credit:        credit,
				Err:           err,
			}
		}

		payload := domain.CreditCarriedForwardEvent{
			FromInvoiceID: inv.ID,
			ToInvoiceID:   next.ID,
			CreditCardID:  inv.CreditCardID,
			Credit:        credit.StringFixed(2),
		}
		if err := uc.journal.emit(txCtx, tx, domain.AggregateTypeInvoice, next.ID, domain.EventTypeInvoiceCreditCarriedForward, payload, now); err != nil {
			return nil, err
		}
		if err := uc.journal.audit(txCtx, tx, domain.AuditActionInvoiceCreditForward, domain.AggregateTypeInvoice, next.ID, nil, next, now); err != nil {
			return nil, err
		}

		result.NextInvoice = next
	} else if err := uc.invoiceRepo.Update(txCtx, tx, inv); err != nil {
		return nil, err
	}

	payload := domain.InvoiceClosedEvent{
		InvoiceID:      inv.ID,
		CreditCardID:   inv.CreditCardID,
		ReferenceMonth: domain.FormatReferenceMonth(inv.ReferenceMonth),
		FinalAmount:    result.FinalAmount.StringFixed(2),
		Paid:           inv.Paid(),
	}
	if err := uc.journal.emit(txCtx, tx, domain.AggregateTypeInvoice, inv.ID, domain.EventTypeInvoiceClosed, payload, now); err != nil {
		return nil, err
	}
	if err := uc.journal.audit(txCtx, tx, domain.AuditActionInvoiceClose, domain.AggregateTypeInvoice, inv.ID, &before, inv, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return result, nil
}

// SetPaidInput overrides the paid flag of an open invoice.
type SetPaidInput struct {
	ExpectedVersion *int64
	InvoiceID       string
	Paid            bool
}

// SetPaid overrides the paid flag while the invoice is open.
func (uc *InvoiceUseCase) SetPaid(ctx context.Context, input SetPaidInput) (*domain.Invoice, error) {
	return uc.override(ctx, input.InvoiceID, input.ExpectedVersion, domain.AuditActionInvoiceSetPaid, "paid",
		func(inv *domain.Invoice, now time.Time) error {
			return inv.SetPaid(input.Paid, now)
		})
}

// SetUseAbsoluteValueInput toggles manual management of totalAmount.
type SetUseAbsoluteValueInput struct {
	ExpectedVersion *int64
	InvoiceID       string
	Enabled         bool
}

// SetUseAbsoluteValue toggles whether totalAmount is managed manually.
// Turning it off restores the total from the invoice's installments.
func (uc *InvoiceUseCase) SetUseAbsoluteValue(ctx context.Context, input SetUseAbsoluteValueInput) (*domain.Invoice, error) {
	return uc.override(ctx, input.InvoiceID, input.ExpectedVersion, domain.AuditActionInvoiceSetAbsolute, "use_absolute_value",
		func(inv *domain.Invoice, now time.Time) error {
			if err := inv.SetUseAbsoluteValue(input.Enabled, now); err != nil {
				return err
			}
			if input.Enabled {
				return nil
			}

			sum, err := uc.installmentRepo.SumByInvoice(ctx, nil, inv.ID)
			if err != nil {
				return err
			}
			inv.RecalculateTotal(sum, now)

			return nil
		})
}

// SetTotalAmountInput sets totalAmount on an absolute-value invoice.
type SetTotalAmountInput struct {
	ExpectedVersion *int64
	InvoiceID       string
	TotalAmount     decimal.Decimal
}

// SetTotalAmount edits totalAmount directly. Rejected with
// domain.ErrInvalidState unless the invoice uses an absolute value.
func (uc *InvoiceUseCase) SetTotalAmount(ctx context.Context, input SetTotalAmountInput) (*domain.Invoice, error) {
	return uc.override(ctx, input.InvoiceID, input.ExpectedVersion, domain.AuditActionInvoiceSetTotal, "total_amount",
		func(inv *domain.Invoice, now time.Time) error {
			return inv.SetTotalAmount(input.TotalAmount, now)
		})
}

func (uc *InvoiceUseCase) override(
	ctx context.Context,
	invoiceID string,
	expectedVersion *int64,
	action domain.AuditAction,
	field string,
	apply func(inv *domain.Invoice, now time.Time) error,
) (*domain.Invoice, error) {
	inv, err := uc.applyOverride(ctx, invoiceID, expectedVersion, action, field, apply)
	if err != nil {
		uc.journal.failure(ctx, action, domain.AggregateTypeInvoice, invoiceID, err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.InvoiceOverrides.WithLabelValues(field).Inc()
	}

	log := logger.WithContext(ctx, uc.log)
	log.Info().
		Str("invoice_id", inv.ID).
		Str("field", field).
		Str("status", string(inv.Status)).
		Msg("invoice override applied")

	return inv, nil
}

func (uc *InvoiceUseCase) applyOverride(
	ctx context.Context,
	invoiceID string,
	expectedVersion *int64,
	action domain.AuditAction,
	field string,
	apply func(inv *domain.Invoice, now time.Time) error,
) (*domain.Invoice, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := checkVersion(expectedVersion, inv.Version); err != nil {
		return nil, err
	}

	before := *inv
	now := time.Now().UTC()

	if err := apply(inv, now); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.invoiceRepo.Update(txCtx, tx, inv); err != nil {
		return nil, err
	}

	if action == domain.AuditActionInvoiceSetPaid {
		payload := map[string]any{
			"invoice_id":     inv.ID,
			"credit_card_id": inv.CreditCardID,
			"paid":           inv.Paid(),
		}
		if err := uc.journal.emit(txCtx, tx, domain.AggregateTypeInvoice, inv.ID, domain.EventTypeInvoicePaidOverridden, payload, now); err != nil {
			return nil, err
		}
	}

	if err := uc.journal.audit(txCtx, tx, action, domain.AggregateTypeInvoice, inv.ID, &before, inv, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return inv, nil
}

// DueInvoices returns up to limit open invoices whose closing date is on or
// before asOf. Open invoices of the current month that are not due yet are
// paged past, so they never hide older due ones.
func (uc *InvoiceUseCase) DueInvoices(ctx context.Context, asOf time.Time, limit int) ([]*domain.Invoice, error) {
	if limit <= 0 {
		limit = DefaultCloseDueBatchSize
	}

	cards := make(map[string]*domain.CreditCard)
	due := make([]*domain.Invoice, 0, limit)

	for offset := 0; ; {
		candidates, err := uc.invoiceRepo.ListOpenUpTo(ctx, domain.MonthStart(asOf), limit, offset)
		if err != nil {
			return nil, err
		}

		for _, inv := range candidates {
			card, ok := cards[inv.CreditCardID]
			if !ok {
				card, err = uc.cardRepo.GetByID(ctx, inv.CreditCardID)
				if err != nil {
					return nil, err
				}
				cards[card.ID] = card
			}

			if card.ClosingDateFor(inv.ReferenceMonth).After(asOf) {
				continue
			}

			due = append(due, inv)
			if len(due) == limit {
				return due, nil
			}
		}

		if len(candidates) < limit {
			return due, nil
		}
		offset += len(candidates)
	}
}

// CloseFailure pairs an invoice with the error that prevented its close.
type CloseFailure struct {
	InvoiceID string
	Err       error
}

// CloseDueResult summarizes a CloseDue run.
type CloseDueResult struct {
	Closed []*CloseResult
	Failed []CloseFailure
}

// CloseDue closes every due invoice once. Failures are collected, not
// retried.
func (uc *InvoiceUseCase) CloseDue(ctx context.Context, asOf time.Time, limit int) (*CloseDueResult, error) {
	due, err := uc.DueInvoices(ctx, asOf, limit)
	if err != nil {
		return nil, err
	}

	result := &CloseDueResult{}
	for _, inv := range due {
		closed, err := uc.Close(ctx, inv.ID)
		if err != nil {
			result.Failed = append(result.Failed, CloseFailure{InvoiceID: inv.ID, Err: err})
			continue
		}
		result.Closed = append(result.Closed, closed)
	}

	return result, nil
}
