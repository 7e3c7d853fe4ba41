package handler

import (
	"context"
	"net/http"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

// CreditCardService defines the behavior needed by CreditCardHandler.
type CreditCardService interface {
	CreateCreditCard(ctx context.Context, input usecase.CreateCreditCardInput) (*domain.CreditCard, error)
	GetCreditCard(ctx context.Context, id string) (*domain.CreditCard, error)
	ListCreditCards(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error)
	UpdateCreditCard(ctx context.Context, input usecase.UpdateCreditCardInput) (*domain.CreditCard, error)
}

// LimitService computes a card's available limit.
type LimitService interface {
	AvailableLimit(ctx context.Context, creditCardID string) (*domain.AvailableLimit, error)
}

// CreditCardHandler handles credit card HTTP requests.
type CreditCardHandler struct {
	cards  CreditCardService
	limits LimitService
}

// NewCreditCardHandler creates a new CreditCardHandler.
func NewCreditCardHandler(cards CreditCardService, limits LimitService) *CreditCardHandler {
	return &CreditCardHandler{cards: cards, limits: limits}
}

// Create creates a new credit card.
func (h *CreditCardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCreditCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	card, err := h.cards.CreateCreditCard(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to create credit card", err)
		return
	}

	setETag(w, card.Version)
	writeJSON(w, http.StatusCreated, dto.CreditCardFromDomain(card))
}

// Get retrieves a credit card by ID.
func (h *CreditCardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	card, err := h.cards.GetCreditCard(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get credit card", err)
		return
	}

	setETag(w, card.Version)
	writeJSON(w, http.StatusOK, dto.CreditCardFromDomain(card))
}

// List lists credit cards.
func (h *CreditCardHandler) List(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.ListCreditCards(r.Context(), parseIntQuery(r, "limit", 20), parseIntQuery(r, "offset", 0))
	if err != nil {
		writeDomainError(w, "failed to list credit cards", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CreditCardsFromDomain(cards))
}

// Update applies a partial update, guarded by If-Match when present.
func (h *CreditCardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	version, err := ifMatchVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid If-Match header", err.Error())
		return
	}

	var req dto.UpdateCreditCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	card, err := h.cards.UpdateCreditCard(r.Context(), req.ToUseCaseInput(id, version))
	if err != nil {
		writeDomainError(w, "failed to update credit card", err)
		return
	}

	setETag(w, card.Version)
	writeJSON(w, http.StatusOK, dto.CreditCardFromDomain(card))
}

// AvailableLimit reports how much of the card's limit is free.
func (h *CreditCardHandler) AvailableLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	limit, err := h.limits.AvailableLimit(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to compute available limit", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AvailableLimitFromDomain(limit))
}
