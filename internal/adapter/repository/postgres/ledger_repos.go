package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

var installmentColumnNames = []string{
	"id", "bill_id", "credit_card_id", "invoice_id", "installment_number", "amount", "due_date", "created_at",
}

const installmentColumns = `id, bill_id, credit_card_id, invoice_id, installment_number, amount, due_date, created_at`

// InstallmentRepository implements usecase.InstallmentRepository.
type InstallmentRepository struct {
	pool DB
}

// NewInstallmentRepository creates a new InstallmentRepository.
func NewInstallmentRepository(pool DB) *InstallmentRepository {
	return &InstallmentRepository{pool: pool}
}

// CreateBatch copies installments into the table in one round trip.
func (r *InstallmentRepository) CreateBatch(ctx context.Context, tx usecase.Transaction, installments []*domain.Installment) error {
	if len(installments) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(installments))
	for _, inst := range installments {
		rows = append(rows, []any{
			inst.ID,
			inst.BillID,
			inst.CreditCardID,
			inst.InvoiceID,
			inst.InstallmentNumber,
			decimalToNumeric(inst.Amount),
			timeToDate(inst.DueDate),
			inst.CreatedAt,
		})
	}

	_, err := conn(r.pool, tx).CopyFrom(ctx, pgx.Identifier{"installments"}, installmentColumnNames, pgx.CopyFromRows(rows))

	return err
}

// ListByBill lists a bill's installments by due date.
func (r *InstallmentRepository) ListByBill(ctx context.Context, billID string) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE bill_id = $1
		ORDER BY due_date, installment_number
	`

	return r.list(ctx, query, billID)
}

// ListByInvoice lists the installments billed on an invoice.
func (r *InstallmentRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE invoice_id = $1
		ORDER BY due_date, installment_number
	`

	return r.list(ctx, query, invoiceID)
}

// DeleteByBill removes every installment of a bill.
func (r *InstallmentRepository) DeleteByBill(ctx context.Context, tx usecase.Transaction, billID string) error {
	_, err := conn(r.pool, tx).Exec(ctx, `DELETE FROM installments WHERE bill_id = $1`, billID)
	return err
}

// SumByInvoice adds up the installments on one invoice.
func (r *InstallmentRepository) SumByInvoice(ctx context.Context, tx usecase.Transaction, invoiceID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM installments WHERE invoice_id = $1`

	return scanSum(conn(r.pool, tx).QueryRow(ctx, query, invoiceID))
}

// SumByInvoiceIDs adds up the installments across invoices.
func (r *InstallmentRepository) SumByInvoiceIDs(ctx context.Context, invoiceIDs []string) (decimal.Decimal, error) {
	if len(invoiceIDs) == 0 {
		return decimal.Zero, nil
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM installments WHERE invoice_id = ANY($1)`

	return scanSum(r.pool.QueryRow(ctx, query, invoiceIDs))
}

func (r *InstallmentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Installment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installments := []*domain.Installment{}
	for rows.Next() {
		var (
			inst   domain.Installment
			amount pgtype.Numeric
			due    pgtype.Date
		)

		err := rows.Scan(
			&inst.ID,
			&inst.BillID,
			&inst.CreditCardID,
			&inst.InvoiceID,
			&inst.InstallmentNumber,
			&amount,
			&due,
			&inst.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		inst.Amount = numericToDecimal(amount)
		inst.DueDate = dateToTime(due)
		installments = append(installments, &inst)
	}

	return installments, rows.Err()
}

const partialPaymentColumns = `id, invoice_id, amount, payment_date, description, created_at`

// PartialPaymentRepository implements usecase.PartialPaymentRepository.
type PartialPaymentRepository struct {
	pool DB
}

// NewPartialPaymentRepository creates a new PartialPaymentRepository.
func NewPartialPaymentRepository(pool DB) *PartialPaymentRepository {
	return &PartialPaymentRepository{pool: pool}
}

// Create inserts a payment.
func (r *PartialPaymentRepository) Create(ctx context.Context, tx usecase.Transaction, payment *domain.PartialPayment) error {
	query := `
		INSERT INTO partial_payments (` + partialPaymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := conn(r.pool, tx).Exec(ctx, query,
		payment.ID,
		payment.InvoiceID,
		decimalToNumeric(payment.Amount),
		payment.PaymentDate,
		payment.Description,
		payment.CreatedAt,
	)

	return err
}

// GetByID retrieves a payment by ID.
func (r *PartialPaymentRepository) GetByID(ctx context.Context, id string) (*domain.PartialPayment, error) {
	query := `SELECT ` + partialPaymentColumns + ` FROM partial_payments WHERE id = $1`

	payment, err := scanPartialPayment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPartialPaymentNotFound
	}

	return payment, err
}

// ListByInvoice lists an invoice's payments by payment date.
func (r *PartialPaymentRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.PartialPayment, error) {
	query := `
		SELECT ` + partialPaymentColumns + `
		FROM partial_payments
		WHERE invoice_id = $1
		ORDER BY payment_date, id
	`

	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []*domain.PartialPayment{}
	for rows.Next() {
		payment, err := scanPartialPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// SumByInvoice adds up an invoice's payments.
func (r *PartialPaymentRepository) SumByInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM partial_payments WHERE invoice_id = $1`

	return scanSum(r.pool.QueryRow(ctx, query, invoiceID))
}

// CountByInvoice counts an invoice's payments.
func (r *PartialPaymentRepository) CountByInvoice(ctx context.Context, invoiceID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM partial_payments WHERE invoice_id = $1`, invoiceID).Scan(&count)

	return count, err
}

// SumByInvoiceIDs adds up payments across invoices.
func (r *PartialPaymentRepository) SumByInvoiceIDs(ctx context.Context, invoiceIDs []string) (decimal.Decimal, error) {
	if len(invoiceIDs) == 0 {
		return decimal.Zero, nil
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM partial_payments WHERE invoice_id = ANY($1)`

	return scanSum(r.pool.QueryRow(ctx, query, invoiceIDs))
}

// Delete removes a payment.
func (r *PartialPaymentRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := conn(r.pool, tx).Exec(ctx, `DELETE FROM partial_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrPartialPaymentNotFound
	}

	return nil
}

func scanPartialPayment(row pgx.Row) (*domain.PartialPayment, error) {
	var (
		payment domain.PartialPayment
		amount  pgtype.Numeric
	)

	err := row.Scan(
		&payment.ID,
		&payment.InvoiceID,
		&amount,
		&payment.PaymentDate,
		&payment.Description,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.Amount = numericToDecimal(amount)

	return &payment, nil
}

const billColumns = `id, credit_card_id, description, total_amount, installment_count, purchased_at, created_at`

// BillRepository implements usecase.BillRepository.
type BillRepository struct {
	pool DB
}

// NewBillRepository creates a new BillRepository.
func NewBillRepository(pool DB) *BillRepository {
	return &BillRepository{pool: pool}
}

// Create inserts a bill.
func (r *BillRepository) Create(ctx context.Context, tx usecase.Transaction, bill *domain.Bill) error {
	query := `
		INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(r.pool, tx).Exec(ctx, query,
		bill.ID,
		bill.CreditCardID,
		bill.Description,
		decimalToNumeric(bill.TotalAmount),
		bill.InstallmentCount,
		bill.PurchasedAt,
		bill.CreatedAt,
	)

	return err
}

// GetByID retrieves a bill by ID.
func (r *BillRepository) GetByID(ctx context.Context, id string) (*domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	bill, err := scanBill(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBillNotFound
	}

	return bill, err
}

// ListByCard lists a card's bills, most recent purchase first.
func (r *BillRepository) ListByCard(ctx context.Context, creditCardID string, limit, offset int) ([]*domain.Bill, error) {
	query := `
		SELECT ` + billColumns + `
		FROM bills
		WHERE credit_card_id = $1
		ORDER BY purchased_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, creditCardID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := []*domain.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}

	return bills, rows.Err()
}

// Delete removes a bill. Its installments go with it.
func (r *BillRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := conn(r.pool, tx).Exec(ctx, `DELETE FROM bills WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrBillNotFound
	}

	return nil
}

func scanBill(row pgx.Row) (*domain.Bill, error) {
	var (
		bill  domain.Bill
		total pgtype.Numeric
	)

	err := row.Scan(
		&bill.ID,
		&bill.CreditCardID,
		&bill.Description,
		&total,
		&bill.InstallmentCount,
		&bill.PurchasedAt,
		&bill.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	bill.TotalAmount = numericToDecimal(total)

	return &bill, nil
}

func scanSum(row pgx.Row) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(sum), nil
}
