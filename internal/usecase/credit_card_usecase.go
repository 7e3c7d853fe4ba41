package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/logger"
)

// CreditCardUseCase handles credit card configuration.
type CreditCardUseCase struct {
	txManager TransactionManager
	cardRepo  CreditCardRepository
	journal   journal
	idGen     IDGenerator
	log       zerolog.Logger
}

// NewCreditCardUseCase creates a new CreditCardUseCase.
func NewCreditCardUseCase(
	txManager TransactionManager,
	cardRepo CreditCardRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	log zerolog.Logger,
) *CreditCardUseCase {
	return &CreditCardUseCase{
		txManager: txManager,
		cardRepo:  cardRepo,
		journal:   journal{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen},
		idGen:     idGen,
		log:       log,
	}
}

// CreateCreditCardInput represents input for creating a credit card.
type CreateCreditCardInput struct {
	Name                 string
	CreditLimit          decimal.Decimal
	ClosingDay           int
	DueDay               int
	AllowsPartialPayment bool
}

// CreateCreditCard creates a new credit card.
func (uc *CreditCardUseCase) CreateCreditCard(ctx context.Context, input CreateCreditCardInput) (*domain.CreditCard, error) {
	now := time.Now().UTC()
	card := &domain.CreditCard{
		ID:                   uc.idGen.Generate(),
		Name:                 input.Name,
		CreditLimit:          input.CreditLimit,
		ClosingDay:           input.ClosingDay,
		DueDay:               input.DueDay,
		AllowsPartialPayment: input.AllowsPartialPayment,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	if err := uc.cardRepo.Create(ctx, card); err != nil {
		return nil, err
	}

	uc.record(ctx, domain.EventTypeCreditCardCreated, domain.AuditActionCreditCardCreate, nil, card, now)

	log := logger.WithContext(ctx, uc.log)
	log.Info().
		Str("credit_card_id", card.ID).
		Str("credit_limit", card.CreditLimit.StringFixed(2)).
		Msg("credit card created")

	return card, nil
}

// GetCreditCard retrieves a credit card by ID.
func (uc *CreditCardUseCase) GetCreditCard(ctx context.Context, id string) (*domain.CreditCard, error) {
	return uc.cardRepo.GetByID(ctx, id)
}

// ListCreditCards lists credit cards with pagination.
func (uc *CreditCardUseCase) ListCreditCards(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.cardRepo.List(ctx, limit, offset)
}

// UpdateCreditCardInput carries the fields to change. Nil fields are kept.
type UpdateCreditCardInput struct {
	ExpectedVersion      *int64
	Name                 *string
	CreditLimit          *decimal.Decimal
	ClosingDay           *int
	DueDay               *int
	AllowsPartialPayment *bool
	ID                   string
}

// UpdateCreditCard applies a partial update with an optimistic version check.
func (uc *CreditCardUseCase) UpdateCreditCard(ctx context.Context, input UpdateCreditCardInput) (*domain.CreditCard, error) {
	card, err := uc.cardRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if err := checkVersion(input.ExpectedVersion, card.Version); err != nil {
		return nil, err
	}

	before := *card

	if input.Name != nil {
		card.Name = *input.Name
	}
	if input.CreditLimit != nil {
		card.CreditLimit = *input.CreditLimit
	}
	if input.ClosingDay != nil {
		card.ClosingDay = *input.ClosingDay
	}
	if input.DueDay != nil {
		card.DueDay = *input.DueDay
	}
	if input.AllowsPartialPayment != nil {
		card.AllowsPartialPayment = *input.AllowsPartialPayment
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	card.UpdatedAt = now

	if err := uc.cardRepo.Update(ctx, card); err != nil {
		return nil, err
	}

	uc.record(ctx, domain.EventTypeCreditCardUpdated, domain.AuditActionCreditCardUpdate, &before, card, now)

	return card, nil
}

// record writes the card event and audit entry after the card itself is
// stored. Failures are logged; the card write already succeeded.
func (uc *CreditCardUseCase) record(ctx context.Context, eventType string, action domain.AuditAction, before, after *domain.CreditCard, now time.Time) {
	if err := uc.writeRecord(ctx, eventType, action, before, after, now); err != nil {
		log := logger.WithContext(ctx, uc.log)
		log.Error().
			Err(err).
			Str("credit_card_id", after.ID).
			Msg("failed to record credit card change")
	}
}

func (uc *CreditCardUseCase) writeRecord(ctx context.Context, eventType string, action domain.AuditAction, before, after *domain.CreditCard, now time.Time) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payload := map[string]any{
		"credit_card_id": after.ID,
		"credit_limit":   after.CreditLimit.StringFixed(2),
		"closing_day":    after.ClosingDay,
		"due_day":        after.DueDay,
	}
	if err := uc.journal.emit(ctx, tx, domain.AggregateTypeCreditCard, after.ID, eventType, payload, now); err != nil {
		return err
	}

	var beforeState any
	if before != nil {
		beforeState = before
	}
	if err := uc.journal.audit(ctx, tx, action, domain.AggregateTypeCreditCard, after.ID, beforeState, after, now); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
