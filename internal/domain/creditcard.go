package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreditCard holds the billing configuration the engine reads.
type CreditCard struct {
	ID                   string
	Name                 string
	CreditLimit          decimal.Decimal
	ClosingDay           int
	DueDay               int
	AllowsPartialPayment bool
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Validate checks the card's limit and billing days.
func (c *CreditCard) Validate() error {
	if err := ValidateCardName(c.Name); err != nil {
		return err
	}

	if !c.CreditLimit.IsPositive() {
		return ErrInvalidCreditLimit
	}

	if err := ValidateScale(c.CreditLimit); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCreditLimit, err)
	}

	if err := ValidateDay(c.ClosingDay); err != nil {
		return err
	}

	return ValidateDay(c.DueDay)
}

// ValidatePartialPayment checks whether the card accepts partial payments.
func (c *CreditCard) ValidatePartialPayment() error {
	if !c.AllowsPartialPayment {
		return ErrPartialPaymentNotAllowed
	}
	return nil
}

// Schedule places the installments of a purchase made on this card.
func (c *CreditCard) Schedule(purchasedAt time.Time, count int) []ScheduledInstallment {
	return Schedule(purchasedAt, c.ClosingDay, c.DueDay, count)
}

// ClosingDateFor returns the closing date of this card's invoice for month.
func (c *CreditCard) ClosingDateFor(month time.Time) time.Time {
	return ClosingDate(month, c.ClosingDay)
}
