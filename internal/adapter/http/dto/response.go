package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

const dateLayout = "2006-01-02"

// CreditCardResponse represents a credit card in API responses.
type CreditCardResponse struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	CreditLimit          decimal.Decimal `json:"credit_limit"`
	ClosingDay           int             `json:"closing_day"`
	DueDay               int             `json:"due_day"`
	AllowsPartialPayment bool            `json:"allows_partial_payment"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// CreditCardFromDomain converts a domain credit card to response.
func CreditCardFromDomain(c *domain.CreditCard) *CreditCardResponse {
	return &CreditCardResponse{
		ID:                   c.ID,
		Name:                 c.Name,
		CreditLimit:          c.CreditLimit,
		ClosingDay:           c.ClosingDay,
		DueDay:               c.DueDay,
		AllowsPartialPayment: c.AllowsPartialPayment,
		Version:              c.Version,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

// CreditCardsFromDomain converts domain credit cards to responses.
func CreditCardsFromDomain(cards []*domain.CreditCard) []*CreditCardResponse {
	return mapAll(cards, CreditCardFromDomain)
}

// InvoiceResponse represents an invoice in API responses.
type InvoiceResponse struct {
	ID               string          `json:"id"`
	CreditCardID     string          `json:"credit_card_id"`
	ReferenceMonth   string          `json:"reference_month"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PreviousBalance  decimal.Decimal `json:"previous_balance"`
	Status           string          `json:"status"`
	UseAbsoluteValue bool            `json:"use_absolute_value"`
	Version          int64           `json:"version"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// InvoiceFromDomain converts a domain invoice to response.
func InvoiceFromDomain(i *domain.Invoice) *InvoiceResponse {
	return &InvoiceResponse{
		ID:               i.ID,
		CreditCardID:     i.CreditCardID,
		ReferenceMonth:   domain.FormatReferenceMonth(i.ReferenceMonth),
		TotalAmount:      i.TotalAmount,
		PreviousBalance:  i.PreviousBalance,
		Status:           string(i.Status),
		UseAbsoluteValue: i.UseAbsoluteValue,
		Version:          i.Version,
		ClosedAt:         i.ClosedAt,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}

// InvoicesFromDomain converts domain invoices to responses.
func InvoicesFromDomain(invoices []*domain.Invoice) []*InvoiceResponse {
	return mapAll(invoices, InvoiceFromDomain)
}

// InvoiceBalanceResponse is the live balance of an invoice.
type InvoiceBalanceResponse struct {
	Invoice       *InvoiceResponse `json:"invoice"`
	PaymentsTotal decimal.Decimal  `json:"payments_total"`
	PaymentsCount int              `json:"payments_count"`
	Balance       decimal.Decimal  `json:"balance"`
	FinalAmount   decimal.Decimal  `json:"final_amount"`
}

// InvoiceBalanceFromUseCase converts a balance view to response.
func InvoiceBalanceFromUseCase(b *usecase.InvoiceBalance) *InvoiceBalanceResponse {
	return &InvoiceBalanceResponse{
		Invoice:       InvoiceFromDomain(b.Invoice),
		PaymentsTotal: b.PaymentsTotal,
		PaymentsCount: b.PaymentsCount,
		Balance:       b.Balance,
		FinalAmount:   b.FinalAmount,
	}
}

// CloseInvoiceResponse describes a completed close.
type CloseInvoiceResponse struct {
	Invoice     *InvoiceResponse `json:"invoice"`
	NextInvoice *InvoiceResponse `json:"next_invoice,omitempty"`
	FinalAmount decimal.Decimal  `json:"final_amount"`
	Credit      decimal.Decimal  `json:"credit"`
}

// CloseInvoiceFromUseCase converts a close result to response.
func CloseInvoiceFromUseCase(r *usecase.CloseResult) *CloseInvoiceResponse {
	resp := &CloseInvoiceResponse{
		Invoice:     InvoiceFromDomain(r.Invoice),
		FinalAmount: r.FinalAmount,
		Credit:      r.Credit,
	}
	if r.NextInvoice != nil {
		resp.NextInvoice = InvoiceFromDomain(r.NextInvoice)
	}
	return resp
}

// CloseFailureResponse names an invoice that could not be closed.
type CloseFailureResponse struct {
	InvoiceID string `json:"invoice_id"`
	Error     string `json:"error"`
}

// CloseDueResponse summarizes a close-due run.
type CloseDueResponse struct {
	Closed []*CloseInvoiceResponse `json:"closed"`
	Failed []CloseFailureResponse  `json:"failed"`
}

// CloseDueFromUseCase converts a close-due result to response.
func CloseDueFromUseCase(r *usecase.CloseDueResult) *CloseDueResponse {
	resp := &CloseDueResponse{
		Closed: mapAll(r.Closed, CloseInvoiceFromUseCase),
		Failed: make([]CloseFailureResponse, len(r.Failed)),
	}
	for i, f := range r.Failed {
		resp.Failed[i] = CloseFailureResponse{InvoiceID: f.InvoiceID, Error: f.Err.Error()}
	}
	return resp
}

// BillResponse represents a purchase header in API responses.
type BillResponse struct {
	ID               string          `json:"id"`
	CreditCardID     string          `json:"credit_card_id"`
	Description      string          `json:"description"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	InstallmentCount int             `json:"installment_count"`
	PurchasedAt      time.Time       `json:"purchased_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// BillFromDomain converts a domain bill to response.
func BillFromDomain(b *domain.Bill) *BillResponse {
	return &BillResponse{
		ID:               b.ID,
		CreditCardID:     b.CreditCardID,
		Description:      b.Description,
		TotalAmount:      b.TotalAmount,
		InstallmentCount: b.InstallmentCount,
		PurchasedAt:      b.PurchasedAt,
		CreatedAt:        b.CreatedAt,
	}
}

// BillsFromDomain converts domain bills to responses.
func BillsFromDomain(bills []*domain.Bill) []*BillResponse {
	return mapAll(bills, BillFromDomain)
}

// InstallmentResponse represents one installment of a purchase.
type InstallmentResponse struct {
	ID                string          `json:"id"`
	BillID            string          `json:"bill_id"`
	InvoiceID         string          `json:"invoice_id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           string          `json:"due_date"`
}

// InstallmentFromDomain converts a domain installment to response.
func InstallmentFromDomain(i *domain.Installment) *InstallmentResponse {
	return &InstallmentResponse{
		ID:                i.ID,
		BillID:            i.BillID,
		InvoiceID:         i.InvoiceID,
		InstallmentNumber: i.InstallmentNumber,
		Amount:            i.Amount,
		DueDate:           i.DueDate.Format(dateLayout),
	}
}

// InstallmentsFromDomain converts domain installments to responses.
func InstallmentsFromDomain(installments []*domain.Installment) []*InstallmentResponse {
	return mapAll(installments, InstallmentFromDomain)
}

// PurchaseResponse is a purchase with its installments and touched invoices.
type PurchaseResponse struct {
	Bill         *BillResponse          `json:"bill"`
	Installments []*InstallmentResponse `json:"installments"`
	Invoices     []*InvoiceResponse     `json:"invoices,omitempty"`
}

// PurchaseFromUseCase converts a purchase to response.
func PurchaseFromUseCase(p *usecase.Purchase) *PurchaseResponse {
	return &PurchaseResponse{
		Bill:         BillFromDomain(p.Bill),
		Installments: InstallmentsFromDomain(p.Installments),
		Invoices:     InvoicesFromDomain(p.Invoices),
	}
}

// PlannedInstallmentResponse is one line of a schedule preview.
type PlannedInstallmentResponse struct {
	Number         int             `json:"number"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        string          `json:"due_date"`
	ReferenceMonth string          `json:"reference_month"`
}

// ScheduleFromDomain converts a planned schedule to response.
func ScheduleFromDomain(plan []domain.PlannedInstallment) []PlannedInstallmentResponse {
	out := make([]PlannedInstallmentResponse, len(plan))
	for i, p := range plan {
		out[i] = PlannedInstallmentResponse{
			Number:         p.Number,
			Amount:         p.Amount,
			DueDate:        p.DueDate.Format(dateLayout),
			ReferenceMonth: domain.FormatReferenceMonth(p.ReferenceMonth),
		}
	}
	return out
}

// PartialPaymentResponse represents a partial payment in API responses.
type PartialPaymentResponse struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	Description *string         `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PartialPaymentFromDomain converts a domain partial payment to response.
func PartialPaymentFromDomain(p *domain.PartialPayment) *PartialPaymentResponse {
	return &PartialPaymentResponse{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		Amount:      p.Amount,
		PaymentDate: p.PaymentDate,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

// PartialPaymentsFromDomain converts domain partial payments to responses.
func PartialPaymentsFromDomain(payments []*domain.PartialPayment) []*PartialPaymentResponse {
	return mapAll(payments, PartialPaymentFromDomain)
}

// RegisterPartialPaymentResponse is the payment plus the card limit after it.
type RegisterPartialPaymentResponse struct {
	Payment        *PartialPaymentResponse `json:"payment"`
	AvailableLimit *AvailableLimitResponse `json:"available_limit,omitempty"`
}

// RegisterPartialPaymentFromUseCase converts a payment result to response.
func RegisterPartialPaymentFromUseCase(r *usecase.RegisterPartialPaymentResult) *RegisterPartialPaymentResponse {
	resp := &RegisterPartialPaymentResponse{Payment: PartialPaymentFromDomain(r.Payment)}
	if r.AvailableLimit != nil {
		resp.AvailableLimit = AvailableLimitFromDomain(r.AvailableLimit)
	}
	return resp
}

// AvailableLimitResponse represents a card's limit usage.
type AvailableLimitResponse struct {
	CreditCardID         string          `json:"credit_card_id"`
	CreditLimit          decimal.Decimal `json:"credit_limit"`
	UsedLimit            decimal.Decimal `json:"used_limit"`
	PartialPaymentsTotal decimal.Decimal `json:"partial_payments_total"`
	AvailableLimit       decimal.Decimal `json:"available_limit"`
	CalculatedAt         time.Time       `json:"calculated_at"`
}

// AvailableLimitFromDomain converts a limit snapshot to response.
func AvailableLimitFromDomain(l *domain.AvailableLimit) *AvailableLimitResponse {
	return &AvailableLimitResponse{
		CreditCardID:         l.CreditCardID,
		CreditLimit:          l.CreditLimit,
		UsedLimit:            l.UsedLimit,
		PartialPaymentsTotal: l.PartialPaymentsTotal,
		AvailableLimit:       l.AvailableLimit,
		CalculatedAt:         l.CalculatedAt,
	}
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func mapAll[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}
