package domain

import "time"

// Event types
const (
	EventTypeInvoiceCreated              = "invoice.created"
	EventTypeInvoiceClosed               = "invoice.closed"
	EventTypeInvoiceCreditCarriedForward = "invoice.credit_carried_forward"
	EventTypeInvoicePaidOverridden       = "invoice.paid_overridden"
	EventTypePartialPaymentRegistered    = "partial_payment.registered"
	EventTypePartialPaymentDeleted       = "partial_payment.deleted"
	EventTypePurchaseRegistered          = "purchase.registered"
	EventTypePurchaseDeleted             = "purchase.deleted"
	EventTypeCreditCardCreated           = "credit_card.created"
	EventTypeCreditCardUpdated           = "credit_card.updated"
)

// Aggregate types
const (
	AggregateTypeInvoice        = "invoice"
	AggregateTypePartialPayment = "partial_payment"
	AggregateTypePurchase       = "purchase"
	AggregateTypeCreditCard     = "credit_card"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// InvoiceClosedEvent payload
type InvoiceClosedEvent struct {
	InvoiceID      string `json:"invoice_id"`
	CreditCardID   string `json:"credit_card_id"`
	ReferenceMonth string `json:"reference_month"`
	FinalAmount    string `json:"final_amount"`
	Paid           bool   `json:"paid"`
}

// CreditCarriedForwardEvent payload
type CreditCarriedForwardEvent struct {
	FromInvoiceID string `json:"from_invoice_id"`
	ToInvoiceID   string `json:"to_invoice_id"`
	CreditCardID  string `json:"credit_card_id"`
	Credit        string `json:"credit"`
}

// PartialPaymentEvent payload
type PartialPaymentEvent struct {
	PaymentID    string `json:"payment_id"`
	InvoiceID    string `json:"invoice_id"`
	CreditCardID string `json:"credit_card_id"`
	Amount       string `json:"amount"`
}

// PurchaseEvent payload
type PurchaseEvent struct {
	BillID           string `json:"bill_id"`
	CreditCardID     string `json:"credit_card_id"`
	TotalAmount      string `json:"total_amount"`
	InstallmentCount int    `json:"installment_count"`
}

// NewOutboxEvent builds an unpublished event from a typed payload.
func NewOutboxEvent(id, aggregateType, aggregateID, eventType string, payload any, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       MarshalState(payload),
		CreatedAt:     now,
		Published:     false,
	}
}
