package usecase

import (
	"context"
	"time"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/logger"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// journal writes outbox events and audit entries inside the caller's
// transaction. A nil audit repository disables auditing.
type journal struct {
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	idGen      IDGenerator
	metrics    *metrics.Metrics
}

func (j journal) emit(ctx context.Context, tx Transaction, aggregateType, aggregateID, eventType string, payload any, now time.Time) error {
	if j.outboxRepo == nil {
		return nil
	}

	event := domain.NewOutboxEvent(j.idGen.Generate(), aggregateType, aggregateID, eventType, payload, now)

	return j.outboxRepo.Create(ctx, tx, event)
}

func (j journal) audit(
	ctx context.Context,
	tx Transaction,
	action domain.AuditAction,
	resourceType, resourceID string,
	before, after any,
	now time.Time,
) error {
	if j.auditRepo == nil {
		return nil
	}

	auditLog := &domain.AuditLog{
		ID:           j.idGen.Generate(),
		UserID:       domain.ActorID(ctx),
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    logger.RequestID(ctx),
		BeforeState:  domain.MarshalState(before),
		AfterState:   domain.MarshalState(after),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    now,
	}

	if err := j.auditRepo.CreateTx(ctx, tx, auditLog); err != nil {
		return err
	}

	if j.metrics != nil {
		j.metrics.AuditLogsCreated.WithLabelValues(auditLog.Action, auditLog.Status).Inc()
	}

	return nil
}

// failure records a rejected operation outside any transaction.
func (j journal) failure(ctx context.Context, action domain.AuditAction, resourceType, resourceID string, err error) {
	if j.metrics != nil {
		kind := domain.KindOf(err)
		j.metrics.OperationErrors.WithLabelValues(string(action), kind.String()).Inc()
		if kind == domain.KindConcurrencyConflict {
			j.metrics.VersionConflicts.WithLabelValues(string(action)).Inc()
		}
	}

	if j.auditRepo == nil {
		return
	}

	_ = j.auditRepo.Create(ctx, &domain.AuditLog{
		ID:           j.idGen.Generate(),
		UserID:       domain.ActorID(ctx),
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    logger.RequestID(ctx),
		Status:       string(domain.AuditStatusFailure),
		ErrorMessage: err.Error(),
		CreatedAt:    time.Now().UTC(),
	})
}

// checkVersion rejects a stale write when the caller supplied the version
// it last read.
func checkVersion(expected *int64, actual int64) error {
	if expected != nil && *expected != actual {
		return domain.ErrVersionConflict
	}
	return nil
}
