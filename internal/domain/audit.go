package domain

import (
	"encoding/json"
	"time"
)

// AuditLog represents an audit trail entry for compliance and debugging
type AuditLog struct {
	ID           string
	UserID       string // Who performed the action
	Action       string // What action (invoice.close, partial_payment.register, etc.)
	ResourceType string // Type of resource (invoice, partial_payment, purchase, credit_card)
	ResourceID   string // ID of the resource
	RequestID    string // Request ID for tracing
	BeforeState  JSON   // State before the action
	AfterState   JSON   // State after the action
	Status       string // success, failure, error
	ErrorMessage string // If status=error, the error message
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	// Invoice actions
	AuditActionInvoiceClose         AuditAction = "invoice.close"
	AuditActionInvoiceSetPaid       AuditAction = "invoice.set_paid"
	AuditActionInvoiceSetAbsolute   AuditAction = "invoice.set_absolute_value"
	AuditActionInvoiceSetTotal      AuditAction = "invoice.set_total_amount"
	AuditActionInvoiceCreditForward AuditAction = "invoice.credit_forward"

	// Partial payment actions
	AuditActionPartialPaymentRegister AuditAction = "partial_payment.register"
	AuditActionPartialPaymentDelete   AuditAction = "partial_payment.delete"

	// Credit card actions
	AuditActionCreditCardCreate AuditAction = "credit_card.create"
	AuditActionCreditCardUpdate AuditAction = "credit_card.update"

	// Purchase actions
	AuditActionPurchaseRegister AuditAction = "purchase.register"
	AuditActionPurchaseDelete   AuditAction = "purchase.delete"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusError   AuditStatus = "error"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}
