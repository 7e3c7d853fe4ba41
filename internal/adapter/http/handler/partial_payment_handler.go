package handler

import (
	"context"
	"net/http"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

// PartialPaymentService defines the behavior needed by PartialPaymentHandler.
type PartialPaymentService interface {
	Register(ctx context.Context, input usecase.RegisterPartialPaymentInput) (*usecase.RegisterPartialPaymentResult, error)
	Delete(ctx context.Context, paymentID string) (bool, error)
	GetPartialPayment(ctx context.Context, id string) (*domain.PartialPayment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.PartialPayment, error)
}

// PartialPaymentHandler handles partial payment HTTP requests.
type PartialPaymentHandler struct {
	payments PartialPaymentService
}

// NewPartialPaymentHandler creates a new PartialPaymentHandler.
func NewPartialPaymentHandler(payments PartialPaymentService) *PartialPaymentHandler {
	return &PartialPaymentHandler{payments: payments}
}

// Register records a payment against the invoice in the path.
func (h *PartialPaymentHandler) Register(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req dto.RegisterPartialPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.payments.Register(r.Context(), req.ToUseCaseInput(invoiceID))
	if err != nil {
		writeDomainError(w, "failed to register partial payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegisterPartialPaymentFromUseCase(result))
}

// ListByInvoice lists the payments made on an invoice.
func (h *PartialPaymentHandler) ListByInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListByInvoice(r.Context(), invoiceID)
	if err != nil {
		writeDomainError(w, "failed to list partial payments", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PartialPaymentsFromDomain(payments))
}

// Get retrieves a partial payment by ID.
func (h *PartialPaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPartialPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get partial payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PartialPaymentFromDomain(payment))
}

// Delete removes a partial payment. A payment that is already gone is
// reported as 404.
func (h *PartialPaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.payments.Delete(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to delete partial payment", err)
		return
	}
	if !deleted {
		writeDomainError(w, "failed to delete partial payment", domain.ErrPartialPaymentNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
