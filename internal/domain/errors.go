package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies an error for callers that need to decide how to surface it.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
	KindStateConflict
	KindConcurrencyConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindStateConflict:
		return "state_conflict"
	case KindConcurrencyConflict:
		return "concurrency_conflict"
	default:
		return "internal"
	}
}

// Error is a sentinel error tagged with a Kind.
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

var (
	// Not found
	ErrCreditCardNotFound     = newError(KindNotFound, "credit card not found")
	ErrInvoiceNotFound        = newError(KindNotFound, "invoice not found")
	ErrPartialPaymentNotFound = newError(KindNotFound, "partial payment not found")
	ErrBillNotFound           = newError(KindNotFound, "purchase not found")

	// Invalid input
	ErrInvalidAmount           = newError(KindInvalidInput, "amount must be positive")
	ErrInvalidPaymentAmount    = newError(KindInvalidInput, "payment amount must be present and positive")
	ErrInvalidDay              = newError(KindInvalidInput, "day of month must be between 1 and 31")
	ErrInvalidInstallmentCount = newError(KindInvalidInput, "invalid installment count")
	ErrInvalidCreditLimit      = newError(KindInvalidInput, "credit limit must be positive")
	ErrInvalidReferenceMonth   = newError(KindInvalidInput, "invalid reference month")

	// State conflicts
	ErrInvoiceAlreadyClosed     = newError(KindStateConflict, "invoice is already closed")
	ErrInvoiceClosed            = newError(KindStateConflict, "invoice is closed")
	ErrPartialPaymentNotAllowed = newError(KindStateConflict, "credit card does not allow partial payments")
	ErrInvalidState             = newError(KindStateConflict, "invalid state")

	// Concurrency
	ErrVersionConflict = newError(KindConcurrencyConflict, "version conflict: record was modified concurrently")
)

// KindOf returns the Kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.kind
	}

	return KindInternal
}

// IsRetryable reports whether the caller may resubmit the operation.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}

// CarryForwardError reports a close that carried credit to the following
// invoice but could not write the closed invoice. Both writes share one
// transaction, so the staged credit is rolled back with it.
type CarryForwardError struct {
	InvoiceID     string
	NextInvoiceID string
	Credit        decimal.Decimal
	Err           error
}

func (e *CarryForwardError) Error() string {
	return fmt.Sprintf(
		"close invoice %s: carrying credit %s to invoice %s failed: %v",
		e.InvoiceID, e.Credit.StringFixed(2), e.NextInvoiceID, e.Err,
	)
}

func (e *CarryForwardError) Unwrap() error { return e.Err }
