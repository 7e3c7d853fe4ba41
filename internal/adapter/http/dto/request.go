package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/usecase"
)

// CreateCreditCardRequest represents a request to create a credit card.
type CreateCreditCardRequest struct {
	Name                 string          `json:"name"`
	CreditLimit          decimal.Decimal `json:"credit_limit"`
	ClosingDay           int             `json:"closing_day"`
	DueDay               int             `json:"due_day"`
	AllowsPartialPayment bool            `json:"allows_partial_payment"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateCreditCardRequest) ToUseCaseInput() usecase.CreateCreditCardInput {
	return usecase.CreateCreditCardInput{
		Name:                 r.Name,
		CreditLimit:          r.CreditLimit,
		ClosingDay:           r.ClosingDay,
		DueDay:               r.DueDay,
		AllowsPartialPayment: r.AllowsPartialPayment,
	}
}

// UpdateCreditCardRequest is a partial update. Absent fields keep their value.
type UpdateCreditCardRequest struct {
	ExpectedVersion      *int64           `json:"expected_version,omitempty"`
	Name                 *string          `json:"name,omitempty"`
	CreditLimit          *decimal.Decimal `json:"credit_limit,omitempty"`
	ClosingDay           *int             `json:"closing_day,omitempty"`
	DueDay               *int             `json:"due_day,omitempty"`
	AllowsPartialPayment *bool            `json:"allows_partial_payment,omitempty"`
}

// ToUseCaseInput converts to use case input. A version from If-Match wins
// over the body.
func (r *UpdateCreditCardRequest) ToUseCaseInput(id string, ifMatch *int64) usecase.UpdateCreditCardInput {
	return usecase.UpdateCreditCardInput{
		ID:                   id,
		ExpectedVersion:      pickVersion(ifMatch, r.ExpectedVersion),
		Name:                 r.Name,
		CreditLimit:          r.CreditLimit,
		ClosingDay:           r.ClosingDay,
		DueDay:               r.DueDay,
		AllowsPartialPayment: r.AllowsPartialPayment,
	}
}

// RegisterPurchaseRequest represents a purchase split into installments.
type RegisterPurchaseRequest struct {
	PurchasedAt      *time.Time      `json:"purchased_at,omitempty"`
	CreditCardID     string          `json:"credit_card_id"`
	Description      string          `json:"description"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	InstallmentCount int             `json:"installment_count"`
}

// ToUseCaseInput converts to use case input.
func (r *RegisterPurchaseRequest) ToUseCaseInput() usecase.RegisterPurchaseInput {
	return usecase.RegisterPurchaseInput{
		PurchasedAt:      r.PurchasedAt,
		CreditCardID:     r.CreditCardID,
		Description:      r.Description,
		TotalAmount:      r.TotalAmount,
		InstallmentCount: r.InstallmentCount,
	}
}

// ToPreviewInput converts to a schedule preview input.
func (r *RegisterPurchaseRequest) ToPreviewInput() usecase.PreviewScheduleInput {
	return usecase.PreviewScheduleInput{
		PurchasedAt:      r.PurchasedAt,
		CreditCardID:     r.CreditCardID,
		TotalAmount:      r.TotalAmount,
		InstallmentCount: r.InstallmentCount,
	}
}

// SetPaidRequest toggles the paid flag of an invoice.
type SetPaidRequest struct {
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	Paid            bool   `json:"paid"`
}

// ToUseCaseInput converts to use case input.
func (r *SetPaidRequest) ToUseCaseInput(invoiceID string, ifMatch *int64) usecase.SetPaidInput {
	return usecase.SetPaidInput{
		ExpectedVersion: pickVersion(ifMatch, r.ExpectedVersion),
		InvoiceID:       invoiceID,
		Paid:            r.Paid,
	}
}

// SetUseAbsoluteValueRequest toggles absolute-value mode of an invoice.
type SetUseAbsoluteValueRequest struct {
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	Enabled         bool   `json:"enabled"`
}

// ToUseCaseInput converts to use case input.
func (r *SetUseAbsoluteValueRequest) ToUseCaseInput(invoiceID string, ifMatch *int64) usecase.SetUseAbsoluteValueInput {
	return usecase.SetUseAbsoluteValueInput{
		ExpectedVersion: pickVersion(ifMatch, r.ExpectedVersion),
		InvoiceID:       invoiceID,
		Enabled:         r.Enabled,
	}
}

// SetTotalAmountRequest overrides the total of an invoice in absolute-value mode.
type SetTotalAmountRequest struct {
	ExpectedVersion *int64          `json:"expected_version,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// ToUseCaseInput converts to use case input.
func (r *SetTotalAmountRequest) ToUseCaseInput(invoiceID string, ifMatch *int64) usecase.SetTotalAmountInput {
	return usecase.SetTotalAmountInput{
		ExpectedVersion: pickVersion(ifMatch, r.ExpectedVersion),
		InvoiceID:       invoiceID,
		TotalAmount:     r.TotalAmount,
	}
}

// CloseDueRequest asks for every open invoice due at AsOf to be closed.
type CloseDueRequest struct {
	AsOf  *time.Time `json:"as_of,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

// RegisterPartialPaymentRequest represents a partial payment on an invoice.
// A missing amount is rejected by the use case.
type RegisterPartialPaymentRequest struct {
	Description *string             `json:"description,omitempty"`
	Amount      decimal.NullDecimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *RegisterPartialPaymentRequest) ToUseCaseInput(invoiceID string) usecase.RegisterPartialPaymentInput {
	return usecase.RegisterPartialPaymentInput{
		Description: r.Description,
		InvoiceID:   invoiceID,
		Amount:      r.Amount,
	}
}

// TokenRequest asks for a development token.
type TokenRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func pickVersion(ifMatch, body *int64) *int64 {
	if ifMatch != nil {
		return ifMatch
	}
	return body
}
