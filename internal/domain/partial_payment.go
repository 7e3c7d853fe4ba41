package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PartialPayment is an immutable payment applied to an open invoice.
type PartialPayment struct {
	ID          string
	InvoiceID   string
	Amount      decimal.Decimal
	PaymentDate time.Time
	Description *string
	CreatedAt   time.Time
}

// ValidatePaymentAmount requires a present, strictly positive amount in
// whole cents. Overpayment relative to the invoice balance is allowed.
func ValidatePaymentAmount(amount decimal.NullDecimal) error {
	if !amount.Valid || !amount.Decimal.IsPositive() {
		return ErrInvalidPaymentAmount
	}
	if err := ValidateScale(amount.Decimal); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPaymentAmount, err)
	}
	return nil
}
