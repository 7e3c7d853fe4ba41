package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/iho/cardledger/internal/domain"
)

var errDuplicateID = errors.New("duplicate id")

// CreditCardRepository implements usecase.CreditCardRepository.
type CreditCardRepository struct {
	store *Store
}

// NewCreditCardRepository creates a new CreditCardRepository.
func NewCreditCardRepository(store *Store) *CreditCardRepository {
	return &CreditCardRepository{store: store}
}

// Create stores a new credit card.
func (r *CreditCardRepository) Create(_ context.Context, card *domain.CreditCard) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.cards[card.ID]; ok {
		return errDuplicateID
	}

	r.store.cards[card.ID] = cloneCard(card)

	return nil
}

// GetByID retrieves a credit card by ID.
func (r *CreditCardRepository) GetByID(_ context.Context, id string) (*domain.CreditCard, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	card, ok := r.store.cards[id]
	if !ok {
		return nil, domain.ErrCreditCardNotFound
	}

	return cloneCard(card), nil
}

// Update writes card when its version matches and bumps the version.
func (r *CreditCardRepository) Update(_ context.Context, card *domain.CreditCard) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.cards[card.ID]
	if !ok {
		return domain.ErrCreditCardNotFound
	}

	if stored.Version != card.Version {
		return domain.ErrVersionConflict
	}

	card.Version++
	r.store.cards[card.ID] = cloneCard(card)

	return nil
}

// List lists credit cards ordered by creation time.
func (r *CreditCardRepository) List(_ context.Context, limit, offset int) ([]*domain.CreditCard, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	cards := make([]*domain.CreditCard, 0, len(r.store.cards))
	for _, c := range r.store.cards {
		cards = append(cards, cloneCard(c))
	}

	sort.Slice(cards, func(i, j int) bool {
		if cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].ID < cards[j].ID
		}
		return cards[i].CreatedAt.Before(cards[j].CreatedAt)
	})

	return page(cards, limit, offset), nil
}
