package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

// InvoiceService defines the behavior needed by InvoiceHandler.
type InvoiceService interface {
	ResolveInvoice(ctx context.Context, creditCardID string, referenceMonth time.Time) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoicesByCard(ctx context.Context, input usecase.ListInvoicesByCardInput) ([]*domain.Invoice, error)
	ListInstallments(ctx context.Context, invoiceID string) ([]*domain.Installment, error)
	Balance(ctx context.Context, invoiceID string) (*usecase.InvoiceBalance, error)
	Close(ctx context.Context, invoiceID string) (*usecase.CloseResult, error)
	CloseDue(ctx context.Context, asOf time.Time, limit int) (*usecase.CloseDueResult, error)
	SetPaid(ctx context.Context, input usecase.SetPaidInput) (*domain.Invoice, error)
	SetUseAbsoluteValue(ctx context.Context, input usecase.SetUseAbsoluteValueInput) (*domain.Invoice, error)
	SetTotalAmount(ctx context.Context, input usecase.SetTotalAmountInput) (*domain.Invoice, error)
}

// InvoiceHandler handles invoice HTTP requests.
type InvoiceHandler struct {
	invoices InvoiceService
	now      func() time.Time
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoices InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoices: invoices,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the card's invoice for a YYYY-MM month, creating it when
// missing.
func (h *InvoiceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	month, err := domain.ParseReferenceMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeDomainError(w, "invalid reference month", err)
		return
	}

	inv, err := h.invoices.ResolveInvoice(r.Context(), cardID, month)
	if err != nil {
		writeDomainError(w, "failed to resolve invoice", err)
		return
	}

	h.writeInvoice(w, http.StatusOK, inv)
}

// Get retrieves an invoice by ID.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get invoice", err)
		return
	}

	h.writeInvoice(w, http.StatusOK, inv)
}

// ListByCard lists a card's invoices, newest month first.
func (h *InvoiceHandler) ListByCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	invoices, err := h.invoices.ListInvoicesByCard(r.Context(), usecase.ListInvoicesByCardInput{
		CreditCardID: id,
		Limit:        parseIntQuery(r, "limit", 20),
		Offset:       parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list invoices", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvoicesFromDomain(invoices))
}

// ListInstallments lists the installments billed on an invoice.
func (h *InvoiceHandler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	installments, err := h.invoices.ListInstallments(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to list installments", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InstallmentsFromDomain(installments))
}

// Balance returns the live balance of an invoice.
func (h *InvoiceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	balance, err := h.invoices.Balance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvoiceBalanceFromUseCase(balance))
}

// Close closes an invoice and carries any credit forward.
func (h *InvoiceHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.invoices.Close(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to close invoice", err)
		return
	}

	setETag(w, result.Invoice.Version)
	writeJSON(w, http.StatusOK, dto.CloseInvoiceFromUseCase(result))
}

// CloseDue closes every open invoice whose closing date has passed.
func (h *InvoiceHandler) CloseDue(w http.ResponseWriter, r *http.Request) {
	// The body is optional.
	var req dto.CloseDueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	asOf := h.now()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	result, err := h.invoices.CloseDue(r.Context(), asOf, req.Limit)
	if err != nil {
		writeDomainError(w, "failed to close due invoices", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CloseDueFromUseCase(result))
}

// SetPaid toggles the paid flag.
func (h *InvoiceHandler) SetPaid(w http.ResponseWriter, r *http.Request) {
	id, version, ok := overrideTarget(w, r)
	if !ok {
		return
	}

	var req dto.SetPaidRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.invoices.SetPaid(r.Context(), req.ToUseCaseInput(id, version))
	if err != nil {
		writeDomainError(w, "failed to set paid flag", err)
		return
	}

	h.writeInvoice(w, http.StatusOK, inv)
}

// SetUseAbsoluteValue toggles absolute-value mode.
func (h *InvoiceHandler) SetUseAbsoluteValue(w http.ResponseWriter, r *http.Request) {
	id, version, ok := overrideTarget(w, r)
	if !ok {
		return
	}

	var req dto.SetUseAbsoluteValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.invoices.SetUseAbsoluteValue(r.Context(), req.ToUseCaseInput(id, version))
	if err != nil {
		writeDomainError(w, "failed to set absolute value mode", err)
		return
	}

	h.writeInvoice(w, http.StatusOK, inv)
}

// SetTotalAmount overrides the invoice total.
func (h *InvoiceHandler) SetTotalAmount(w http.ResponseWriter, r *http.Request) {
	id, version, ok := overrideTarget(w, r)
	if !ok {
		return
	}

	var req dto.SetTotalAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.invoices.SetTotalAmount(r.Context(), req.ToUseCaseInput(id, version))
	if err != nil {
		writeDomainError(w, "failed to set total amount", err)
		return
	}

	h.writeInvoice(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) writeInvoice(w http.ResponseWriter, status int, inv *domain.Invoice) {
	setETag(w, inv.Version)
	writeJSON(w, status, dto.InvoiceFromDomain(inv))
}

func overrideTarget(w http.ResponseWriter, r *http.Request) (string, *int64, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return "", nil, false
	}

	version, err := ifMatchVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid If-Match header", err.Error())
		return "", nil, false
	}

	return id, version, true
}
