package usecase_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/cardledger/internal/adapter/repository/memory"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
	"github.com/iho/cardledger/internal/usecase"
)

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) Generate() string {
	return fmt.Sprintf("id-%04d", s.n.Add(1))
}

type ledger struct {
	store    *memory.Store
	cards    *usecase.CreditCardUseCase
	invoices *usecase.InvoiceUseCase
	payments *usecase.PartialPaymentUseCase
	purchase *usecase.PurchaseUseCase
	limits   *usecase.LimitUseCase
	outbox   *memory.OutboxRepository
	audit    *memory.AuditRepository
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newLedger(t *testing.T) *ledger {
	t.Helper()

	store := memory.NewStore()
	txManager := memory.NewTxManager(store)
	cardRepo := memory.NewCreditCardRepository(store)
	invoiceRepo := memory.NewInvoiceRepository(store)
	installmentRepo := memory.NewInstallmentRepository(store)
	paymentRepo := memory.NewPartialPaymentRepository(store)
	billRepo := memory.NewBillRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)
	auditRepo := memory.NewAuditRepository(store)

	ids := &seqIDs{}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	log := zerolog.Nop()

	limits := usecase.NewLimitUseCase(cardRepo, invoiceRepo, installmentRepo, paymentRepo, m)

	return &ledger{
		store:    store,
		cards:    usecase.NewCreditCardUseCase(txManager, cardRepo, outboxRepo, auditRepo, ids, log),
		invoices: usecase.NewInvoiceUseCase(txManager, cardRepo, invoiceRepo, installmentRepo, paymentRepo, outboxRepo, auditRepo, ids, m, log),
		payments: usecase.NewPartialPaymentUseCase(txManager, cardRepo, invoiceRepo, paymentRepo, limits, outboxRepo, auditRepo, ids, m, log),
		purchase: usecase.NewPurchaseUseCase(txManager, cardRepo, billRepo, invoiceRepo, installmentRepo, outboxRepo, auditRepo, ids, m, log),
		limits:   limits,
		outbox:   outboxRepo,
		audit:    auditRepo,
		metrics:  m,
		registry: reg,
	}
}

func (l *ledger) card(t *testing.T, limit string, closingDay, dueDay int, partial bool) *domain.CreditCard {
	t.Helper()

	card, err := l.cards.CreateCreditCard(context.Background(), usecase.CreateCreditCardInput{
		Name:                 "Main card",
		CreditLimit:          dec(limit),
		ClosingDay:           closingDay,
		DueDay:               dueDay,
		AllowsPartialPayment: partial,
	})
	require.NoError(t, err)

	return card
}

func (l *ledger) buy(t *testing.T, cardID, amount string, count int, at time.Time) *usecase.Purchase {
	t.Helper()

	p, err := l.purchase.RegisterPurchase(context.Background(), usecase.RegisterPurchaseInput{
		PurchasedAt:      &at,
		CreditCardID:     cardID,
		Description:      "purchase",
		TotalAmount:      dec(amount),
		InstallmentCount: count,
	})
	require.NoError(t, err)

	return p
}

func (l *ledger) pay(t *testing.T, invoiceID, amount string) *usecase.RegisterPartialPaymentResult {
	t.Helper()

	res, err := l.payments.Register(context.Background(), usecase.RegisterPartialPaymentInput{
		InvoiceID: invoiceID,
		Amount:    decimal.NewNullDecimal(dec(amount)),
	})
	require.NoError(t, err)

	return res
}

func (l *ledger) invoiceFor(t *testing.T, cardID string, month time.Time) *domain.Invoice {
	t.Helper()

	inv, err := l.invoices.ResolveInvoice(context.Background(), cardID, month)
	require.NoError(t, err)

	return inv
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func eventTypes(t *testing.T, l *ledger, aggregateType, aggregateID string) []string {
	t.Helper()

	events, err := l.outbox.GetByAggregate(context.Background(), aggregateType, aggregateID, 100, 0)
	require.NoError(t, err)

	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}

	return out
}
