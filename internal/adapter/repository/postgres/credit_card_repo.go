package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/cardledger/internal/domain"
)

const creditCardColumns = `id, name, credit_limit, closing_day, due_day, allows_partial_payment, version, created_at, updated_at`

// CreditCardRepository implements usecase.CreditCardRepository.
type CreditCardRepository struct {
	pool DB
}

// NewCreditCardRepository creates a new CreditCardRepository.
func NewCreditCardRepository(pool DB) *CreditCardRepository {
	return &CreditCardRepository{pool: pool}
}

// Create inserts a new credit card.
func (r *CreditCardRepository) Create(ctx context.Context, card *domain.CreditCard) error {
	query := `
		INSERT INTO credit_cards (` + creditCardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		card.ID,
		card.Name,
		decimalToNumeric(card.CreditLimit),
		card.ClosingDay,
		card.DueDay,
		card.AllowsPartialPayment,
		card.Version,
		card.CreatedAt,
		card.UpdatedAt,
	)

	return err
}

// GetByID retrieves a credit card by ID.
func (r *CreditCardRepository) GetByID(ctx context.Context, id string) (*domain.CreditCard, error) {
	query := `SELECT ` + creditCardColumns + ` FROM credit_cards WHERE id = $1`

	card, err := scanCreditCard(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCreditCardNotFound
	}

	return card, err
}

// Update writes card when its version matches and bumps the version.
func (r *CreditCardRepository) Update(ctx context.Context, card *domain.CreditCard) error {
	query := `
		UPDATE credit_cards
		SET name = $3, credit_limit = $4, closing_day = $5, due_day = $6,
		    allows_partial_payment = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		card.ID,
		card.Version,
		card.Name,
		decimalToNumeric(card.CreditLimit),
		card.ClosingDay,
		card.DueDay,
		card.AllowsPartialPayment,
		card.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.pool, "credit_cards", card.ID, domain.ErrCreditCardNotFound)
	}

	card.Version++

	return nil
}

// List lists credit cards ordered by creation time.
func (r *CreditCardRepository) List(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error) {
	query := `
		SELECT ` + creditCardColumns + `
		FROM credit_cards
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []*domain.CreditCard{}
	for rows.Next() {
		card, err := scanCreditCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	return cards, rows.Err()
}

func scanCreditCard(row pgx.Row) (*domain.CreditCard, error) {
	var (
		card  domain.CreditCard
		limit pgtype.Numeric
	)

	err := row.Scan(
		&card.ID,
		&card.Name,
		&limit,
		&card.ClosingDay,
		&card.DueDay,
		&card.AllowsPartialPayment,
		&card.Version,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.CreditLimit = numericToDecimal(limit)

	return &card, nil
}

// missingOrStale tells a failed version-checked update of a missing row
// from one that lost a race.
func missingOrStale(ctx context.Context, q querier, table, id string, notFound error) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return notFound
	}

	return domain.ErrVersionConflict
}
