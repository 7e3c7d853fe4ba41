package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// LimitUseCase computes a card's available credit.
type LimitUseCase struct {
	cardRepo        CreditCardRepository
	invoiceRepo     InvoiceRepository
	installmentRepo InstallmentRepository
	paymentRepo     PartialPaymentRepository
	metrics         *metrics.Metrics
}

// NewLimitUseCase creates a new LimitUseCase.
func NewLimitUseCase(
	cardRepo CreditCardRepository,
	invoiceRepo InvoiceRepository,
	installmentRepo InstallmentRepository,
	paymentRepo PartialPaymentRepository,
	metrics *metrics.Metrics,
) *LimitUseCase {
	return &LimitUseCase{
		cardRepo:        cardRepo,
		invoiceRepo:     invoiceRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		metrics:         metrics,
	}
}

// AvailableLimit returns creditLimit - usedLimit + partialPaymentsTotal,
// where both sums range over the card's open, unpaid invoices.
func (uc *LimitUseCase) AvailableLimit(ctx context.Context, creditCardID string) (*domain.AvailableLimit, error) {
	card, err := uc.cardRepo.GetByID(ctx, creditCardID)
	if err != nil {
		return nil, err
	}

	return uc.forCard(ctx, card)
}

func (uc *LimitUseCase) forCard(ctx context.Context, card *domain.CreditCard) (*domain.AvailableLimit, error) {
	start := time.Now()

	invoices, err := uc.invoiceRepo.ListByCardAndStatus(ctx, card.ID, false, false)
	if err != nil {
		return nil, err
	}

	used, payments := decimal.Zero, decimal.Zero

	if len(invoices) > 0 {
		ids := make([]string, 0, len(invoices))
		for _, inv := range invoices {
			ids = append(ids, inv.ID)
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			sum, err := uc.installmentRepo.SumByInvoiceIDs(gctx, ids)
			if err != nil {
				return err
			}
			used = sum
			return nil
		})

		g.Go(func() error {
			sum, err := uc.paymentRepo.SumByInvoiceIDs(gctx, ids)
			if err != nil {
				return err
			}
			payments = sum
			return nil
		})

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if uc.metrics != nil {
		uc.metrics.LimitCalculations.Inc()
		uc.metrics.LimitDuration.Observe(time.Since(start).Seconds())
	}

	return domain.NewAvailableLimit(card, used, payments, time.Now().UTC()), nil
}
