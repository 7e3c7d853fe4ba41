package closingjob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/cardledger/internal/adapter/repository/memory"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
	"github.com/iho/cardledger/internal/usecase"
	"github.com/iho/cardledger/internal/usecase/mocks"
)

type stubCloser struct {
	due      []*domain.Invoice
	errs     map[string][]error
	closed   []string
	dueCalls int
}

func (s *stubCloser) DueInvoices(_ context.Context, _ time.Time, limit int) ([]*domain.Invoice, error) {
	s.dueCalls++

	var open []*domain.Invoice
	for _, inv := range s.due {
		if !contains(s.closed, inv.ID) {
			open = append(open, inv)
		}
	}
	if len(open) > limit {
		open = open[:limit]
	}

	return open, nil
}

func (s *stubCloser) Close(_ context.Context, id string) (*usecase.CloseResult, error) {
	if queued := s.errs[id]; len(queued) > 0 {
		s.errs[id] = queued[1:]
		return nil, queued[0]
	}

	s.closed = append(s.closed, id)

	return &usecase.CloseResult{Invoice: &domain.Invoice{ID: id}, FinalAmount: decimal.Zero, Credit: decimal.Zero}, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// retryOnConflict re-runs the operation up to three times on a version conflict.
func retryOnConflict(ctrl *gomock.Controller) *mocks.MockRetrier {
	r := mocks.NewMockRetrier(ctrl)
	r.EXPECT().Retry(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, op func() error) error {
		var err error
		for i := 0; i < 3; i++ {
			if err = op(); !domain.IsRetryable(err) {
				return err
			}
		}
		return err
	}).AnyTimes()
	return r
}

func TestRunOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	closer := &stubCloser{
		due: []*domain.Invoice{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}},
		errs: map[string][]error{
			"b": {domain.ErrVersionConflict},
			"c": {domain.ErrInvoiceAlreadyClosed},
			"d": {errors.New("boom")},
		},
	}

	job := New(Config{
		Invoices:  closer,
		Retrier:   retryOnConflict(ctrl),
		Logger:    zerolog.Nop(),
		Metrics:   m,
		BatchSize: 2,
	})

	result, err := job.RunOnce(context.Background(), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, &RunResult{Closed: 3, Skipped: 1, Failed: 1}, result)
	assert.ElementsMatch(t, []string{"a", "b", "e"}, closer.closed)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ClosingJobInvoices))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClosingJobRuns.WithLabelValues("partial")))
}

func TestRunOnce_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	job := New(Config{
		Invoices: failingCloser{},
		Retrier:  mocks.NewMockRetrier(ctrl),
		Logger:   zerolog.Nop(),
		Metrics:  m,
	})

	_, err := job.RunOnce(context.Background(), time.Now())
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClosingJobRuns.WithLabelValues("error")))
}

type failingCloser struct{}

func (failingCloser) DueInvoices(context.Context, time.Time, int) ([]*domain.Invoice, error) {
	return nil, errors.New("database unavailable")
}

func (failingCloser) Close(context.Context, string) (*usecase.CloseResult, error) {
	return nil, errors.New("unexpected close")
}

type seqIDs struct{ n int }

func (s *seqIDs) Generate() string {
	s.n++
	return fmt.Sprintf("id-%04d", s.n)
}

type billing struct {
	cards    *usecase.CreditCardUseCase
	invoices *usecase.InvoiceUseCase
	payments *usecase.PartialPaymentUseCase
	purchase *usecase.PurchaseUseCase
	metrics  *metrics.Metrics
}

func newBilling() *billing {
	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	cards := memory.NewCreditCardRepository(store)
	invoices := memory.NewInvoiceRepository(store)
	installments := memory.NewInstallmentRepository(store)
	payments := memory.NewPartialPaymentRepository(store)
	outbox := memory.NewOutboxRepository(store)
	audit := memory.NewAuditRepository(store)
	ids := &seqIDs{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	log := zerolog.Nop()

	limits := usecase.NewLimitUseCase(cards, invoices, installments, payments, m)

	return &billing{
		cards:    usecase.NewCreditCardUseCase(txm, cards, outbox, audit, ids, log),
		invoices: usecase.NewInvoiceUseCase(txm, cards, invoices, installments, payments, outbox, audit, ids, m, log),
		payments: usecase.NewPartialPaymentUseCase(txm, cards, invoices, payments, limits, outbox, audit, ids, m, log),
		purchase: usecase.NewPurchaseUseCase(txm, cards, memory.NewBillRepository(store), invoices, installments, outbox, audit, ids, m, log),
		metrics:  m,
	}
}

func (b *billing) buy(t *testing.T, closingDay, dueDay int, amount int64, installments int, at time.Time) *usecase.Purchase {
	t.Helper()
	ctx := context.Background()

	card, err := b.cards.CreateCreditCard(ctx, usecase.CreateCreditCardInput{
		Name:                 "Job card",
		CreditLimit:          decimal.NewFromInt(1000),
		ClosingDay:           closingDay,
		DueDay:               dueDay,
		AllowsPartialPayment: true,
	})
	require.NoError(t, err)

	purchase, err := b.purchase.RegisterPurchase(ctx, usecase.RegisterPurchaseInput{
		CreditCardID:     card.ID,
		TotalAmount:      decimal.NewFromInt(amount),
		InstallmentCount: installments,
		PurchasedAt:      &at,
	})
	require.NoError(t, err)

	return purchase
}

func TestRunOnce_ClosesWithCarryForward(t *testing.T) {
	ctx := context.Background()
	b := newBilling()

	purchase := b.buy(t, 10, 20, 200, 2, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	march := purchase.Invoices[0]
	_, err := b.payments.Register(ctx, usecase.RegisterPartialPaymentInput{
		InvoiceID: march.ID,
		Amount:    decimal.NewNullDecimal(decimal.NewFromInt(130)),
	})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	job := New(Config{Invoices: b.invoices, Retrier: retryOnConflict(ctrl), Logger: zerolog.Nop(), Metrics: b.metrics})

	result, err := job.RunOnce(ctx, time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, result.Closed)

	result, err = job.RunOnce(ctx, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)

	closed, err := b.invoices.GetInvoice(ctx, march.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusClosedPaid, closed.Status)

	april, err := b.invoices.GetInvoice(ctx, purchase.Invoices[1].ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(april.PreviousBalance), "april previous balance %s", april.PreviousBalance)
	assert.False(t, april.Closed())
}

func TestRunOnce_NotYetDueInvoicesDoNotBlockDueOnes(t *testing.T) {
	ctx := context.Background()
	b := newBilling()
	at := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	// Cards closing on the 28th sort ahead of the due invoice and are still
	// open on March 10th.
	var pending []*usecase.Purchase
	for range 3 {
		pending = append(pending, b.buy(t, 28, 5, 100, 1, at))
	}
	due := b.buy(t, 5, 15, 100, 1, at)

	ctrl := gomock.NewController(t)
	job := New(Config{Invoices: b.invoices, Retrier: retryOnConflict(ctrl), Logger: zerolog.Nop(), Metrics: b.metrics, BatchSize: 1})

	result, err := job.RunOnce(ctx, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, &RunResult{Closed: 1}, result)

	closed, err := b.invoices.GetInvoice(ctx, due.Invoices[0].ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed())

	for _, p := range pending {
		inv, err := b.invoices.GetInvoice(ctx, p.Invoices[0].ID)
		require.NoError(t, err)
		assert.False(t, inv.Closed())
	}
}
