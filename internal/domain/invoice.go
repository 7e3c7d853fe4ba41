package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusOpenUnpaid   InvoiceStatus = "open_unpaid"
	InvoiceStatusOpenPaid     InvoiceStatus = "open_paid"
	InvoiceStatusClosedUnpaid InvoiceStatus = "closed_unpaid"
	InvoiceStatusClosedPaid   InvoiceStatus = "closed_paid"
)

// StatusOf builds the status for the given closed and paid flags.
func StatusOf(closed, paid bool) InvoiceStatus {
	switch {
	case closed && paid:
		return InvoiceStatusClosedPaid
	case closed:
		return InvoiceStatusClosedUnpaid
	case paid:
		return InvoiceStatusOpenPaid
	default:
		return InvoiceStatusOpenUnpaid
	}
}

// IsValid reports whether s is a known status.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusOpenUnpaid, InvoiceStatusOpenPaid, InvoiceStatusClosedUnpaid, InvoiceStatusClosedPaid:
		return true
	}
	return false
}

func (s InvoiceStatus) IsClosed() bool {
	return s == InvoiceStatusClosedUnpaid || s == InvoiceStatusClosedPaid
}

func (s InvoiceStatus) IsPaid() bool {
	return s == InvoiceStatusOpenPaid || s == InvoiceStatusClosedPaid
}

// Invoice is the monthly statement of one credit card.
type Invoice struct {
	ID               string
	CreditCardID     string
	ReferenceMonth   time.Time
	TotalAmount      decimal.Decimal
	PreviousBalance  decimal.Decimal
	Status           InvoiceStatus
	UseAbsoluteValue bool
	Version          int64
	ClosedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewInvoice returns an open, unpaid invoice with zero balances.
func NewInvoice(id, creditCardID string, referenceMonth, now time.Time) *Invoice {
	return &Invoice{
		ID:              id,
		CreditCardID:    creditCardID,
		ReferenceMonth:  MonthStart(referenceMonth),
		TotalAmount:     decimal.Zero,
		PreviousBalance: decimal.Zero,
		Status:          InvoiceStatusOpenUnpaid,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (i *Invoice) Closed() bool { return i.Status.IsClosed() }
func (i *Invoice) Paid() bool   { return i.Status.IsPaid() }

// ConsumesLimit reports whether the invoice still counts against the
// card's credit limit.
func (i *Invoice) ConsumesLimit() bool {
	return i.Status == InvoiceStatusOpenUnpaid
}

// NextReferenceMonth is the month following the invoice's reference month.
func (i *Invoice) NextReferenceMonth() time.Time {
	return MonthStart(i.ReferenceMonth).AddDate(0, 1, 0)
}

// SetPaid overrides the paid flag of an open invoice.
func (i *Invoice) SetPaid(paid bool, now time.Time) error {
	if i.Closed() {
		return ErrInvoiceClosed
	}

	i.Status = StatusOf(false, paid)
	i.UpdatedAt = now

	return nil
}

// SetUseAbsoluteValue toggles whether TotalAmount is managed manually.
func (i *Invoice) SetUseAbsoluteValue(enabled bool, now time.Time) error {
	if i.Closed() {
		return ErrInvoiceClosed
	}

	i.UseAbsoluteValue = enabled
	i.UpdatedAt = now

	return nil
}

// SetTotalAmount sets TotalAmount directly. Only allowed when the invoice
// uses an absolute value.
func (i *Invoice) SetTotalAmount(amount decimal.Decimal, now time.Time) error {
	if !i.UseAbsoluteValue {
		return ErrInvalidState
	}

	if i.Closed() {
		return ErrInvoiceClosed
	}

	if err := ValidateScale(amount); err != nil {
		return err
	}

	i.TotalAmount = amount
	i.UpdatedAt = now

	return nil
}

// RecalculateTotal replaces TotalAmount with the sum of the invoice's
// installments. It reports whether the total changed; invoices with an
// absolute value keep theirs.
func (i *Invoice) RecalculateTotal(installmentsSum decimal.Decimal, now time.Time) bool {
	if i.UseAbsoluteValue || i.TotalAmount.Equal(installmentsSum) {
		return false
	}

	i.TotalAmount = installmentsSum
	i.UpdatedAt = now

	return true
}

// Balance is the live balance of the invoice:
// totalAmount + previousBalance - payments.
func (i *Invoice) Balance(paymentsTotal decimal.Decimal) decimal.Decimal {
	return i.TotalAmount.Add(i.PreviousBalance).Sub(paymentsTotal)
}

// FinalAmount is the amount settled at close: totalAmount - payments.
// PreviousBalance is not part of it.
func (i *Invoice) FinalAmount(paymentsTotal decimal.Decimal) decimal.Decimal {
	return i.TotalAmount.Sub(paymentsTotal)
}

// Close moves the invoice to a closed state. Paid is recomputed from the
// final amount. The returned credit is positive when payments exceeded the
// total and must be carried to the next invoice.
func (i *Invoice) Close(paymentsTotal decimal.Decimal, now time.Time) (credit decimal.Decimal, err error) {
	if i.Closed() {
		return decimal.Zero, ErrInvoiceAlreadyClosed
	}

	final := i.FinalAmount(paymentsTotal)

	i.Status = StatusOf(true, !final.IsPositive())
	i.ClosedAt = &now
	i.UpdatedAt = now

	if final.IsNegative() {
		return final.Neg(), nil
	}

	return decimal.Zero, nil
}

// ReceiveCredit adds carried-forward credit to PreviousBalance.
func (i *Invoice) ReceiveCredit(credit decimal.Decimal, now time.Time) {
	i.PreviousBalance = i.PreviousBalance.Add(credit)
	i.UpdatedAt = now
}
