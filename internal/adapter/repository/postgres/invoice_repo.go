package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

const invoiceColumns = `id, credit_card_id, reference_month, total_amount, previous_balance, status,
	use_absolute_value, version, closed_at, created_at, updated_at`

// InvoiceRepository implements usecase.InvoiceRepository.
type InvoiceRepository struct {
	pool DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(pool DB) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	return oneInvoice(r.pool.QueryRow(ctx, query, id))
}

// GetByCardAndMonth retrieves the card's invoice for a reference month.
func (r *InvoiceRepository) GetByCardAndMonth(ctx context.Context, creditCardID string, referenceMonth time.Time) (*domain.Invoice, error) {
	return r.getByCardAndMonth(ctx, r.pool, creditCardID, referenceMonth)
}

func (r *InvoiceRepository) getByCardAndMonth(ctx context.Context, q querier, creditCardID string, referenceMonth time.Time) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE credit_card_id = $1 AND reference_month = $2`

	return oneInvoice(q.QueryRow(ctx, query, creditCardID, timeToDate(domain.MonthStart(referenceMonth))))
}

// GetOrCreate inserts inv unless the (card, month) slot is taken and returns
// the stored row. The unique key on (credit_card_id, reference_month) makes
// concurrent callers converge on one invoice.
func (r *InvoiceRepository) GetOrCreate(ctx context.Context, tx usecase.Transaction, inv *domain.Invoice) (*domain.Invoice, bool, error) {
	q := conn(r.pool, tx)
	month := domain.MonthStart(inv.ReferenceMonth)

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (credit_card_id, reference_month) DO NOTHING
	`

	tag, err := q.Exec(ctx, query,
		inv.ID,
		inv.CreditCardID,
		timeToDate(month),
		decimalToNumeric(inv.TotalAmount),
		decimalToNumeric(inv.PreviousBalance),
		string(inv.Status),
		inv.UseAbsoluteValue,
		inv.Version,
		optionalTimestamptz(inv.ClosedAt),
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return nil, false, err
	}

	if tag.RowsAffected() == 1 {
		stored := *inv
		stored.ReferenceMonth = month
		return &stored, true, nil
	}

	stored, err := r.getByCardAndMonth(ctx, q, inv.CreditCardID, month)
	if err != nil {
		return nil, false, err
	}

	return stored, false, nil
}

// ListByCardAndStatus lists the card's invoices with the given flags,
// oldest first.
func (r *InvoiceRepository) ListByCardAndStatus(ctx context.Context, creditCardID string, closed, paid bool) ([]*domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE credit_card_id = $1 AND status = $2
		ORDER BY reference_month, id
	`

	return r.list(ctx, query, creditCardID, string(domain.StatusOf(closed, paid)))
}

// ListByCard lists the card's invoices, newest reference month first.
func (r *InvoiceRepository) ListByCard(ctx context.Context, creditCardID string, limit, offset int) ([]*domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE credit_card_id = $1
		ORDER BY reference_month DESC, id
		LIMIT $2 OFFSET $3
	`

	return r.list(ctx, query, creditCardID, limit, offset)
}

// ListOpenUpTo lists open invoices of any card up to a reference month,
// oldest first. A zero limit means no limit.
func (r *InvoiceRepository) ListOpenUpTo(ctx context.Context, referenceMonth time.Time, limit, offset int) ([]*domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status IN ('open_unpaid', 'open_paid') AND reference_month <= $1
		ORDER BY reference_month, id
		LIMIT NULLIF($2, 0) OFFSET $3
	`

	return r.list(ctx, query, timeToDate(domain.MonthStart(referenceMonth)), limit, offset)
}

// Update writes inv when its version matches and bumps the version.
func (r *InvoiceRepository) Update(ctx context.Context, tx usecase.Transaction, inv *domain.Invoice) error {
	q := conn(r.pool, tx)

	query := `
		UPDATE invoices
		SET total_amount = $3, previous_balance = $4, status = $5, use_absolute_value = $6,
		    closed_at = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := q.Exec(ctx, query,
		inv.ID,
		inv.Version,
		decimalToNumeric(inv.TotalAmount),
		decimalToNumeric(inv.PreviousBalance),
		string(inv.Status),
		inv.UseAbsoluteValue,
		optionalTimestamptz(inv.ClosedAt),
		inv.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, q, "invoices", inv.ID, domain.ErrInvoiceNotFound)
	}

	inv.Version++

	return nil
}

// SaveAll updates every invoice in order and stops at the first failure.
func (r *InvoiceRepository) SaveAll(ctx context.Context, tx usecase.Transaction, invoices []*domain.Invoice) error {
	for _, inv := range invoices {
		if err := r.Update(ctx, tx, inv); err != nil {
			return err
		}
	}

	return nil
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []*domain.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

func oneInvoice(row pgx.Row) (*domain.Invoice, error) {
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInvoiceNotFound
	}

	return inv, err
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var (
		inv             domain.Invoice
		month           pgtype.Date
		total, previous pgtype.Numeric
		status          string
		closedAt        pgtype.Timestamptz
	)

	err := row.Scan(
		&inv.ID,
		&inv.CreditCardID,
		&month,
		&total,
		&previous,
		&status,
		&inv.UseAbsoluteValue,
		&inv.Version,
		&closedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.ReferenceMonth = dateToTime(month)
	inv.TotalAmount = numericToDecimal(total)
	inv.PreviousBalance = numericToDecimal(previous)
	inv.Status = domain.InvoiceStatus(status)
	inv.ClosedAt = pgTimestamptzToTime(closedAt)

	return &inv, nil
}
