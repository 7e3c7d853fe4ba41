package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AvailableLimit is a point-in-time snapshot of a card's spendable credit.
type AvailableLimit struct {
	CreditCardID         string
	CreditLimit          decimal.Decimal
	UsedLimit            decimal.Decimal
	PartialPaymentsTotal decimal.Decimal
	AvailableLimit       decimal.Decimal
	CalculatedAt         time.Time
}

// NewAvailableLimit computes creditLimit - used + payments. The result may
// exceed the credit limit or be negative.
func NewAvailableLimit(card *CreditCard, used, payments decimal.Decimal, at time.Time) *AvailableLimit {
	return &AvailableLimit{
		CreditCardID:         card.ID,
		CreditLimit:          card.CreditLimit,
		UsedLimit:            used,
		PartialPaymentsTotal: payments,
		AvailableLimit:       card.CreditLimit.Sub(used).Add(payments),
		CalculatedAt:         at,
	}
}

// OverLimit reports whether open charges exceed the credit limit.
func (l *AvailableLimit) OverLimit() bool {
	return l.AvailableLimit.IsNegative()
}
