package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

// InvoiceRepository implements usecase.InvoiceRepository.
type InvoiceRepository struct {
	store *Store
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(store *Store) *InvoiceRepository {
	return &InvoiceRepository{store: store}
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepository) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	inv, ok := r.store.invoices[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}

	return cloneInvoice(inv), nil
}

// GetByCardAndMonth retrieves the card's invoice for a reference month.
func (r *InvoiceRepository) GetByCardAndMonth(_ context.Context, creditCardID string, referenceMonth time.Time) (*domain.Invoice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.invoiceKeys[invoiceKey{creditCardID, domain.MonthStart(referenceMonth)}]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}

	return cloneInvoice(r.store.invoices[id]), nil
}

// GetOrCreate inserts inv unless the (card, month) slot is taken.
func (r *InvoiceRepository) GetOrCreate(_ context.Context, tx usecase.Transaction, inv *domain.Invoice) (*domain.Invoice, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := invoiceKey{inv.CreditCardID, domain.MonthStart(inv.ReferenceMonth)}
	if id, ok := r.store.invoiceKeys[key]; ok {
		return cloneInvoice(r.store.invoices[id]), false, nil
	}

	stored := cloneInvoice(inv)
	stored.ReferenceMonth = key.month
	r.store.invoices[stored.ID] = stored
	r.store.invoiceKeys[key] = stored.ID

	onRollback(tx, func() {
		delete(r.store.invoices, stored.ID)
		delete(r.store.invoiceKeys, key)
	})

	return cloneInvoice(stored), true, nil
}

// ListByCardAndStatus lists the card's invoices with the given flags.
func (r *InvoiceRepository) ListByCardAndStatus(_ context.Context, creditCardID string, closed, paid bool) ([]*domain.Invoice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	status := domain.StatusOf(closed, paid)

	var out []*domain.Invoice
	for _, inv := range r.store.invoices {
		if inv.CreditCardID == creditCardID && inv.Status == status {
			out = append(out, cloneInvoice(inv))
		}
	}
	sortByMonth(out, false)

	return out, nil
}

// ListByCard lists the card's invoices, newest reference month first.
func (r *InvoiceRepository) ListByCard(_ context.Context, creditCardID string, limit, offset int) ([]*domain.Invoice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Invoice
	for _, inv := range r.store.invoices {
		if inv.CreditCardID == creditCardID {
			out = append(out, cloneInvoice(inv))
		}
	}
	sortByMonth(out, true)

	return page(out, limit, offset), nil
}

// ListOpenUpTo lists open invoices of any card up to a reference month,
// oldest first.
func (r *InvoiceRepository) ListOpenUpTo(_ context.Context, referenceMonth time.Time, limit, offset int) ([]*domain.Invoice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	month := domain.MonthStart(referenceMonth)

	var out []*domain.Invoice
	for _, inv := range r.store.invoices {
		if !inv.Closed() && !inv.ReferenceMonth.After(month) {
			out = append(out, cloneInvoice(inv))
		}
	}
	sortByMonth(out, false)

	return page(out, limit, offset), nil
}

// Update writes inv when its version matches and bumps the version.
func (r *InvoiceRepository) Update(_ context.Context, tx usecase.Transaction, inv *domain.Invoice) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.update(tx, inv)
}

// SaveAll updates every invoice under one lock.
func (r *InvoiceRepository) SaveAll(_ context.Context, tx usecase.Transaction, invoices []*domain.Invoice) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, inv := range invoices {
		if err := r.update(tx, inv); err != nil {
			return err
		}
	}

	return nil
}

func (r *InvoiceRepository) update(tx usecase.Transaction, inv *domain.Invoice) error {
	stored, ok := r.store.invoices[inv.ID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}

	if stored.Version != inv.Version {
		return domain.ErrVersionConflict
	}

	previous := stored
	inv.Version++
	r.store.invoices[inv.ID] = cloneInvoice(inv)

	onRollback(tx, func() {
		r.store.invoices[previous.ID] = previous
	})

	return nil
}

func sortByMonth(invoices []*domain.Invoice, desc bool) {
	sort.Slice(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if a.ReferenceMonth.Equal(b.ReferenceMonth) {
			return a.ID < b.ID
		}
		if desc {
			return a.ReferenceMonth.After(b.ReferenceMonth)
		}
		return a.ReferenceMonth.Before(b.ReferenceMonth)
	})
}
