// Package closingjob closes invoices automatically once their card's
// closing day has passed.
package closingjob

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
	"github.com/iho/cardledger/internal/usecase"
)

// InvoiceCloser is the part of usecase.InvoiceUseCase the job drives.
type InvoiceCloser interface {
	DueInvoices(ctx context.Context, asOf time.Time, limit int) ([]*domain.Invoice, error)
	Close(ctx context.Context, invoiceID string) (*usecase.CloseResult, error)
}

// Config for Job.
type Config struct {
	Invoices  InvoiceCloser
	Retrier   usecase.Retrier
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Interval  time.Duration
	BatchSize int
}

// RunResult summarizes one pass over the due invoices.
type RunResult struct {
	Closed  int
	Skipped int
	Failed  int
}

// Job periodically closes due invoices. Version conflicts are retried
// through the Retrier; every invoice is closed in its own transaction.
type Job struct {
	invoices  InvoiceCloser
	retrier   usecase.Retrier
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// New creates a Job.
func New(cfg Config) *Job {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = usecase.DefaultCloseDueBatchSize
	}

	return &Job{
		invoices:  cfg.Invoices,
		retrier:   cfg.Retrier,
		logger:    cfg.Logger.With().Str("component", "closing_job").Logger(),
		metrics:   cfg.Metrics,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the job until ctx is cancelled.
func (j *Job) Start(ctx context.Context) error {
	j.logger.Info().
		Dur("interval", j.interval).
		Int("batch_size", j.batchSize).
		Msg("closing job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("closing job shutting down")
			return ctx.Err()
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	if _, err := j.RunOnce(ctx, j.now()); err != nil && !errors.Is(err, context.Canceled) {
		j.logger.Error().Err(err).Msg("closing job run failed")
	}
}

// RunOnce closes every invoice due as of asOf, one batch at a time, until a
// batch closes nothing new.
func (j *Job) RunOnce(ctx context.Context, asOf time.Time) (*RunResult, error) {
	result := &RunResult{}
	attempted := make(map[string]bool)

	for {
		// Invoices that failed or were skipped stay open and keep being
		// listed, so the window grows by the ones already attempted.
		limit := j.batchSize + len(attempted)

		due, err := j.invoices.DueInvoices(ctx, asOf, limit)
		if err != nil {
			j.observe("error")
			return result, err
		}

		progressed := false
		for _, inv := range due {
			if attempted[inv.ID] {
				continue
			}
			attempted[inv.ID] = true
			progressed = true

			j.closeOne(ctx, inv, result)
		}

		if !progressed || len(due) < limit {
			break
		}
	}

	status := "success"
	if result.Failed > 0 {
		status = "partial"
	}
	j.observe(status)

	if result.Closed > 0 || result.Failed > 0 {
		j.logger.Info().
			Time("as_of", asOf).
			Int("closed", result.Closed).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("closing job run finished")
	}

	return result, nil
}

func (j *Job) closeOne(ctx context.Context, inv *domain.Invoice, result *RunResult) {
	var closed *usecase.CloseResult

	err := j.retrier.Retry(ctx, func() error {
		var err error
		closed, err = j.invoices.Close(ctx, inv.ID)
		return err
	})

	switch {
	case err == nil:
		result.Closed++
		if j.metrics != nil {
			j.metrics.ClosingJobInvoices.Inc()
		}
		j.logger.Debug().
			Str("invoice_id", inv.ID).
			Str("credit_card_id", inv.CreditCardID).
			Str("final_amount", closed.FinalAmount.String()).
			Str("credit", closed.Credit.String()).
			Msg("invoice closed")
	case errors.Is(err, domain.ErrInvoiceAlreadyClosed):
		// Closed by someone else since it was listed.
		result.Skipped++
	default:
		result.Failed++
		j.logger.Error().
			Err(err).
			Str("invoice_id", inv.ID).
			Str("credit_card_id", inv.CreditCardID).
			Msg("failed to close invoice")
	}
}

func (j *Job) observe(status string) {
	if j.metrics != nil {
		j.metrics.ClosingJobRuns.WithLabelValues(status).Inc()
	}
}
