package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bill is a purchase made on a credit card, paid in installments.
type Bill struct {
	ID               string
	CreditCardID     string
	Description      string
	TotalAmount      decimal.Decimal
	InstallmentCount int
	PurchasedAt      time.Time
	CreatedAt        time.Time
}

// Validate checks the purchase amount and installment count.
func (b *Bill) Validate() error {
	if err := ValidateAmount(b.TotalAmount); err != nil {
		return err
	}

	if b.InstallmentCount < 1 || b.InstallmentCount > MaxInstallments {
		return ErrInvalidInstallmentCount
	}

	return ValidateDescription(b.Description)
}
