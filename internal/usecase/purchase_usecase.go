package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/logger"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// PurchaseUseCase registers purchases and spreads them across invoices.
type PurchaseUseCase struct {
	txManager       TransactionManager
	cardRepo        CreditCardRepository
	billRepo        BillRepository
	invoiceRepo     InvoiceRepository
	installmentRepo InstallmentRepository
	journal         journal
	idGen           IDGenerator
	metrics         *metrics.Metrics
	log             zerolog.Logger
}

// NewPurchaseUseCase creates a new PurchaseUseCase.
func NewPurchaseUseCase(
	txManager TransactionManager,
	cardRepo CreditCardRepository,
	billRepo BillRepository,
	invoiceRepo InvoiceRepository,
	installmentRepo InstallmentRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	log zerolog.Logger,
) *PurchaseUseCase {
	return &PurchaseUseCase{
		txManager:       txManager,
		cardRepo:        cardRepo,
		billRepo:        billRepo,
		invoiceRepo:     invoiceRepo,
		installmentRepo: installmentRepo,
		journal:         journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen, metrics: metrics},
		idGen:           idGen,
		metrics:         metrics,
		log:             log,
	}
}

// RegisterPurchaseInput represents input for registering a purchase.
type RegisterPurchaseInput struct {
	PurchasedAt      *time.Time
	CreditCardID     string
	Description      string
	TotalAmount      decimal.Decimal
	InstallmentCount int
}

// Purchase is a bill with its installments and the invoices they landed on.
type Purchase struct {
	Bill         *domain.Bill
	Installments []*domain.Installment
	Invoices     []*domain.Invoice
}

// RegisterPurchase splits a purchase into installments, places each one on
// its invoice, and recomputes the affected invoice totals.
func (uc *PurchaseUseCase) RegisterPurchase(ctx context.Context, input RegisterPurchaseInput) (*Purchase, error) {
	purchase, err := uc.register(ctx, input)
	if err != nil {
		uc.journal.failure(ctx, domain.AuditActionPurchaseRegister, domain.AggregateTypeCreditCard, input.CreditCardID, err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PurchasesRegistered.Inc()
		uc.metrics.InstallmentsScheduled.Add(float64(len(purchase.Installments)))
		uc.metrics.PurchaseAmount.Observe(purchase.Bill.TotalAmount.InexactFloat64())
	}

	log := logger.WithContext(ctx, uc.log)
	log.Info().
		Str("bill_id", purchase.Bill.ID).
		Str("credit_card_id", purchase.Bill.CreditCardID).
		Str("total_amount", purchase.Bill.TotalAmount.StringFixed(2)).
		Int("installments", purchase.Bill.InstallmentCount).
		Msg("purchase registered")

	return purchase, nil
}

func (uc *PurchaseUseCase) register(ctx context.Context, input RegisterPurchaseInput) (*Purchase, error) {
	card, err := uc.cardRepo.GetByID(ctx, input.CreditCardID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	purchasedAt := now
	if input.PurchasedAt != nil {
		purchasedAt = *input.PurchasedAt
	}

	bill := &domain.Bill{
		ID:               uc.idGen.Generate(),
		CreditCardID:     card.ID,
		Description:      input.Description,
		TotalAmount:      input.TotalAmount,
		InstallmentCount: input.InstallmentCount,
		PurchasedAt:      purchasedAt,
		CreatedAt:        now,
	}

	if err := bill.Validate(); err != nil {
		return nil, err
	}

	plan, err := domain.PlanInstallments(card, bill.TotalAmount, bill.InstallmentCount, purchasedAt)
	if err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	byMonth := make(map[time.Time]*domain.Invoice)
	installments := make([]*domain.Installment, 0, len(plan))

	for _, p := range plan {
		inv, ok := byMonth[p.ReferenceMonth]
		if !ok {
			inv, err = resolveInvoice(txCtx, tx, uc.invoiceRepo, uc.journal, card.ID, p.ReferenceMonth, now)
			if err != nil {
				return nil, err
			}
			if inv.Closed() {
				return nil, domain.ErrInvoiceClosed
			}
			byMonth[p.ReferenceMonth] = inv
		}

		installments = append(installments, &domain.Installment{
			ID:                uc.idGen.Generate(),
			BillID:            bill.ID,
			CreditCardID:      card.ID,
			InvoiceID:         inv.ID,
			InstallmentNumber: p.Number,
			Amount:            p.Amount,
			DueDate:           p.DueDate,
			CreatedAt:         now,
		})
	}

	if err := uc.billRepo.Create(txCtx, tx, bill); err != nil {
		return nil, err
	}

	if err := uc.installmentRepo.CreateBatch(txCtx, tx, installments); err != nil {
		return nil, err
	}

	invoices := sortedInvoices(byMonth)
	if err := uc.recalculate(txCtx, tx, invoices, now); err != nil {
		return nil, err
	}

	payload := domain.PurchaseEvent{
		BillID:           bill.ID,
		CreditCardID:     card.ID,
		TotalAmount:      bill.TotalAmount.StringFixed(2),
		InstallmentCount: bill.InstallmentCount,
	}
	if err := uc.journal.emit(txCtx, tx, domain.AggregateTypePurchase, bill.ID, domain.EventTypePurchaseRegistered, payload, now); err != nil {
		return nil, err
	}
	if err := uc.journal.audit(txCtx, tx, domain.AuditActionPurchaseRegister, domain.AggregateTypePurchase, bill.ID, nil, bill, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return &Purchase{Bill: bill, Installments: installments, Invoices: invoices}, nil
}

// recalculate rewrites each invoice total from its installments. Every
// invoice is written, changed or not, so concurrent closes conflict.
func (uc *PurchaseUseCase) recalculate(ctx context.Context, tx Transaction, invoices []*domain.Invoice, now time.Time) error {
	for _, inv := range invoices {
		sum, err := uc.installmentRepo.SumByInvoice(ctx, tx, inv.ID)
		if err != nil {
			return err
		}

		inv.RecalculateTotal(sum, now)
		inv.UpdatedAt = now
	}

	return uc.invoiceRepo.SaveAll(ctx, tx, invoices)
}

// GetPurchase retrieves a purchase with its installments.
func (uc *PurchaseUseCase) GetPurchase(ctx context.Context, billID string) (*Purchase, error) {
	bill, err := uc.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	installments, err := uc.installmentRepo.ListByBill(ctx, billID)
	if err != nil {
		return nil, err
	}

	return &Purchase{Bill: bill, Installments: installments}, nil
}

// ListPurchasesByCardInput represents input for listing a card's purchases.
type ListPurchasesByCardInput struct {
	CreditCardID string
	Limit        int
	Offset       int
}

// ListPurchasesByCard lists purchases of a card, newest first.
func (uc *PurchaseUseCase) ListPurchasesByCard(ctx context.Context, input ListPurchasesByCardInput) ([]*domain.Bill, error) {
	if _, err := uc.cardRepo.GetByID(ctx, input.CreditCardID); err != nil {
		return nil, err
	}

	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)

	return uc.billRepo.ListByCard(ctx, input.CreditCardID, limit, offset)
}

// DeletePurchase removes a purchase and its installments and recomputes the
// affected invoices. Rejected when any of them is closed.
func (uc *PurchaseUseCase) DeletePurchase(ctx context.Context, billID string) error {
	if err := uc.deletePurchase(ctx, billID); err != nil {
		uc.journal.failure(ctx, domain.AuditActionPurchaseDelete, domain.AggregateTypePurchase, billID, err)
		return err
	}

	if uc.metrics != nil {
		uc.metrics.PurchasesDeleted.Inc()
	}

	log := logger.WithContext(ctx, uc.log)
	log.Info().Str("bill_id", billID).Msg("purchase deleted")

	return nil
}

func (uc *PurchaseUseCase) deletePurchase(ctx context.Context, billID string) error {
	bill, err := uc.billRepo.GetByID(ctx, billID)
	if err != nil {
		return err
	}

	installments, err := uc.installmentRepo.ListByBill(ctx, billID)
	if err != nil {
		return err
	}

	byID := make(map[string]*domain.Invoice)
	for _, inst := range installments {
		if _, ok := byID[inst.InvoiceID]; ok {
			continue
		}

		inv, err := uc.invoiceRepo.GetByID(ctx, inst.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Closed() {
			return domain.ErrInvoiceClosed
		}
		byID[inv.ID] = inv
	}

	now := time.Now().UTC()

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.installmentRepo.DeleteByBill(txCtx, tx, billID); err != nil {
		return err
	}

	if err := uc.billRepo.Delete(txCtx, tx, billID); err != nil {
		return err
	}

	invoices := make([]*domain.Invoice, 0, len(byID))
	for _, inv := range byID {
		invoices = append(invoices, inv)
	}
	sortByReferenceMonth(invoices)

	if err := uc.recalculate(txCtx, tx, invoices, now); err != nil {
		return err
	}

	payload := domain.PurchaseEvent{
		BillID:           bill.ID,
		CreditCardID:     bill.CreditCardID,
		TotalAmount:      bill.TotalAmount.StringFixed(2),
		InstallmentCount: bill.InstallmentCount,
	}
	if err := uc.journal.emit(txCtx, tx, domain.AggregateTypePurchase, bill.ID, domain.EventTypePurchaseDeleted, payload, now); err != nil {
		return err
	}
	if err := uc.journal.audit(txCtx, tx, domain.AuditActionPurchaseDelete, domain.AggregateTypePurchase, bill.ID, bill, nil, now); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// PreviewScheduleInput represents input for a dry-run schedule.
type PreviewScheduleInput struct {
	PurchasedAt      *time.Time
	CreditCardID     string
	TotalAmount      decimal.Decimal
	InstallmentCount int
}

// PreviewSchedule plans a purchase on the card's calendar without writing.
func (uc *PurchaseUseCase) PreviewSchedule(ctx context.Context, input PreviewScheduleInput) ([]domain.PlannedInstallment, error) {
	card, err := uc.cardRepo.GetByID(ctx, input.CreditCardID)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateAmount(input.TotalAmount); err != nil {
		return nil, err
	}

	purchasedAt := time.Now().UTC()
	if input.PurchasedAt != nil {
		purchasedAt = *input.PurchasedAt
	}

	return domain.PlanInstallments(card, input.TotalAmount, input.InstallmentCount, purchasedAt)
}

func sortedInvoices(byMonth map[time.Time]*domain.Invoice) []*domain.Invoice {
	invoices := make([]*domain.Invoice, 0, len(byMonth))
	for _, inv := range byMonth {
		invoices = append(invoices, inv)
	}
	sortByReferenceMonth(invoices)

	return invoices
}

// sortByReferenceMonth orders writes so concurrent purchases on the same
// card touch invoices in the same order.
func sortByReferenceMonth(invoices []*domain.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].ReferenceMonth.Before(invoices[j].ReferenceMonth)
	})
}
