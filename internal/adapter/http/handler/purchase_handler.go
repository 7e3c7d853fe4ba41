package handler

import (
	"context"
	"net/http"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

// PurchaseService defines the behavior needed by PurchaseHandler.
type PurchaseService interface {
	RegisterPurchase(ctx context.Context, input usecase.RegisterPurchaseInput) (*usecase.Purchase, error)
	GetPurchase(ctx context.Context, billID string) (*usecase.Purchase, error)
	ListPurchasesByCard(ctx context.Context, input usecase.ListPurchasesByCardInput) ([]*domain.Bill, error)
	DeletePurchase(ctx context.Context, billID string) error
	PreviewSchedule(ctx context.Context, input usecase.PreviewScheduleInput) ([]domain.PlannedInstallment, error)
}

// PurchaseHandler handles purchase HTTP requests.
type PurchaseHandler struct {
	purchases PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchases PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// Create registers a purchase and its installments.
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterPurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	purchase, err := h.purchases.RegisterPurchase(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to register purchase", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PurchaseFromUseCase(purchase))
}

// Preview returns the installment schedule a purchase would get.
func (h *PurchaseHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterPurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	plan, err := h.purchases.PreviewSchedule(r.Context(), req.ToPreviewInput())
	if err != nil {
		writeDomainError(w, "failed to preview schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ScheduleFromDomain(plan))
}

// Get retrieves a purchase with its installments.
func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	purchase, err := h.purchases.GetPurchase(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get purchase", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PurchaseFromUseCase(purchase))
}

// Delete removes a purchase whose invoices are all still open.
func (h *PurchaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.purchases.DeletePurchase(r.Context(), id); err != nil {
		writeDomainError(w, "failed to delete purchase", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListByCard lists a card's purchases, newest first.
func (h *PurchaseHandler) ListByCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	bills, err := h.purchases.ListPurchasesByCard(r.Context(), usecase.ListPurchasesByCardInput{
		CreditCardID: id,
		Limit:        parseIntQuery(r, "limit", 20),
		Offset:       parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list purchases", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BillsFromDomain(bills))
}
